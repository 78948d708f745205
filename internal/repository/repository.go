package repository

import (
	"context"

	"github.com/firi193/lucid/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	// CreateUser returns ErrConflict when the email is already registered.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// PostRepository persists posts.
type PostRepository interface {
	// CreatePost assigns ID and CreatedAt on the passed post.
	CreatePost(ctx context.Context, post *domain.Post) error
	// ListPostsByOwner returns the owner's posts in ascending ID order.
	ListPostsByOwner(ctx context.Context, ownerID string) ([]domain.Post, error)
	GetPostByID(ctx context.Context, postID int64) (*domain.Post, error)
	// DeletePost removes the post only when it belongs to ownerID.
	DeletePost(ctx context.Context, postID int64, ownerID string) error
}
