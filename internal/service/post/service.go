package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/firi193/lucid/internal/cache"
	"github.com/firi193/lucid/internal/domain"
	"github.com/firi193/lucid/internal/repository"
)

const defaultMaxContentBytes = 1 << 20

var (
	ErrInvalidContent = errors.New("post: content must be non-empty UTF-8 text within the size limit")
	// ErrNotFound covers both missing posts and posts owned by someone else.
	ErrNotFound = errors.New("post: not found")
)

// Authenticator resolves a session credential to the caller's user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Service manages posts on behalf of the authenticated caller.
type Service struct {
	auth            Authenticator
	posts           repository.PostRepository
	cache           cache.PostCache
	logger          *slog.Logger
	maxContentBytes int
}

// New constructs a Service. maxContentBytes <= 0 selects the 1 MiB default.
func New(auth Authenticator, posts repository.PostRepository, postCache cache.PostCache, logger *slog.Logger, maxContentBytes int) Service {
	if maxContentBytes <= 0 {
		maxContentBytes = defaultMaxContentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		auth:            auth,
		posts:           posts,
		cache:           postCache,
		logger:          logger.With("component", "posts"),
		maxContentBytes: maxContentBytes,
	}
}

// Create stores a new post owned by the caller.
func (s Service) Create(ctx context.Context, credential, content string) (*domain.Post, error) {
	ownerID, err := s.auth.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	if !s.validContent(content) {
		return nil, ErrInvalidContent
	}
	post := &domain.Post{OwnerID: ownerID, Content: content}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info("post created", "user_id", ownerID, "post_id", post.ID)
	return post, nil
}

// List returns the caller's posts in creation order, serving from cache when valid.
func (s Service) List(ctx context.Context, credential string) ([]domain.Post, error) {
	ownerID, err := s.auth.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}

	lookup, cacheErr := s.cache.Get(ctx, ownerID)
	if cacheErr != nil {
		s.logger.Warn("cache read failed", "user_id", ownerID, "error", cacheErr)
	} else if lookup.Hit {
		return lookup.Posts, nil
	}

	posts, err := s.posts.ListPostsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts = domain.ClonePosts(posts)

	// A failed read leaves no version to fill against.
	if cacheErr != nil {
		return posts, nil
	}
	installed, ferr := s.cache.Fill(ctx, ownerID, lookup.Version, posts)
	if ferr != nil {
		s.logger.Warn("cache fill failed", "user_id", ownerID, "error", ferr)
	} else if !installed {
		s.logger.Debug("cache fill skipped after concurrent write", "user_id", ownerID)
	}
	return posts, nil
}

// Delete removes one of the caller's posts.
func (s Service) Delete(ctx context.Context, credential string, postID int64) error {
	ownerID, err := s.auth.Authenticate(ctx, credential)
	if err != nil {
		return err
	}
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get post: %w", err)
	}
	if post.OwnerID != ownerID {
		s.logger.Warn("delete of foreign post refused", "user_id", ownerID, "post_id", postID)
		return ErrNotFound
	}
	if err := s.posts.DeletePost(ctx, postID, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// lost a race with another delete of the same post
			s.invalidate(ctx, ownerID)
			return ErrNotFound
		}
		return fmt.Errorf("delete post: %w", err)
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info("post deleted", "user_id", ownerID, "post_id", postID)
	return nil
}

// validContent rejects what the TEXT column would refuse as well as blank or oversized bodies.
func (s Service) validContent(content string) bool {
	if strings.TrimSpace(content) == "" || len(content) > s.maxContentBytes {
		return false
	}
	return utf8.ValidString(content) && !strings.ContainsRune(content, 0)
}

func (s Service) invalidate(ctx context.Context, ownerID string) {
	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.logger.Error("cache invalidation failed", "user_id", ownerID, "error", err)
	}
}
