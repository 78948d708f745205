package post

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firi193/lucid/internal/cache"
	"github.com/firi193/lucid/internal/domain"
	"github.com/firi193/lucid/internal/repository"
	"github.com/firi193/lucid/internal/service/auth"
	"github.com/firi193/lucid/pkg/config"
)

type stubAuthenticator map[string]string

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", auth.ErrInvalidCredential
}

type stubPostRepository struct {
	mu        sync.Mutex
	nextID    int64
	posts     map[int64]domain.Post
	listCalls int
	err       error
	// afterList runs after the store snapshot is taken and before it is returned.
	afterList func()
}

func newStubPostRepository() *stubPostRepository {
	return &stubPostRepository{posts: make(map[int64]domain.Post)}
}

func (s *stubPostRepository) CreatePost(ctx context.Context, post *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.nextID++
	post.ID = s.nextID
	post.CreatedAt = time.Now().UTC()
	s.posts[post.ID] = *post
	return nil
}

func (s *stubPostRepository) ListPostsByOwner(ctx context.Context, ownerID string) ([]domain.Post, error) {
	s.mu.Lock()
	s.listCalls++
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	out := make([]domain.Post, 0)
	for _, p := range s.posts {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	hook := s.afterList
	s.afterList = nil
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *stubPostRepository) GetPostByID(ctx context.Context, postID int64) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.posts[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *stubPostRepository) DeletePost(ctx context.Context, postID int64, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	p, ok := s.posts[postID]
	if !ok || p.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(s.posts, postID)
	return nil
}

func (s *stubPostRepository) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (cache.Lookup, error) {
	return cache.Lookup{}, errors.New("cache down")
}
func (failingCache) Put(context.Context, string, []domain.Post) error { return errors.New("cache down") }
func (failingCache) Fill(context.Context, string, uint64, []domain.Post) (bool, error) {
	return false, errors.New("cache down")
}
func (failingCache) Invalidate(context.Context, string) error { return errors.New("cache down") }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc   Service
	repo  *stubPostRepository
	clock *testClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, time.August, 1, 10, 0, 0, 0, time.UTC)}
	mem, err := cache.NewMemory(cache.MemoryOptions{TTL: 5 * time.Minute, MaxEntries: 10, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(mem.Close)
	repo := newStubPostRepository()
	authn := stubAuthenticator{"token-a": "user-a", "token-b": "user-b"}
	return fixture{
		svc:   New(authn, repo, mem, discardLogger(), 0),
		repo:  repo,
		clock: clock,
	}
}

func contents(posts []domain.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Content)
	}
	return out
}

func TestScenarioRegisterLoginCreateListDelete(t *testing.T) {
	ctx := context.Background()
	users := &memoryUsers{byEmail: make(map[string]domain.User)}
	authSvc := auth.New(users, discardLogger(), config.APIConfig{JWTSecret: "scenario-secret", SessionTTL: time.Hour})
	mem, err := cache.NewMemory(cache.MemoryOptions{})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer mem.Close()
	svc := New(authSvc, newStubPostRepository(), mem, discardLogger(), 0)

	if _, err := authSvc.Register(ctx, "a@x.com", "pw1pw1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, session, err := authSvc.Login(ctx, "a@x.com", "pw1pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	created, err := svc.Create(ctx, session.Token, "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	posts, err := svc.List(ctx, session.Token)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := contents(posts); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected [hello], got %v", got)
	}
	if err := svc.Delete(ctx, session.Token, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	posts, err = svc.List(ctx, session.Token)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty list, got %v", contents(posts))
	}
}

type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
}

func (m *memoryUsers) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	m.byEmail[user.Email] = *user
	return nil
}

func (m *memoryUsers) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func TestListIsolatedPerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []struct{ token, content string }{
		{"token-a", "a1"}, {"token-b", "b1"}, {"token-a", "a2"}, {"token-b", "b2"},
	} {
		if _, err := f.svc.Create(ctx, c.token, c.content); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	for round := 0; round < 2; round++ {
		postsA, err := f.svc.List(ctx, "token-a")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, p := range postsA {
			if p.OwnerID != "user-a" {
				t.Fatalf("user-a received post owned by %s", p.OwnerID)
			}
		}
		if got := strings.Join(contents(postsA), ","); got != "a1,a2" {
			t.Fatalf("unexpected user-a posts %q", got)
		}
		postsB, _ := f.svc.List(ctx, "token-b")
		if got := strings.Join(contents(postsB), ","); got != "b1,b2" {
			t.Fatalf("unexpected user-b posts %q", got)
		}
	}
}

func TestCreateAfterCachedListIsVisibleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "token-a", "first"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.List(ctx, "token-a"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := f.svc.Create(ctx, "token-a", "second"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	posts, err := f.svc.List(ctx, "token-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := strings.Join(contents(posts), ","); got != "first,second" {
		t.Fatalf("expected first,second got %q", got)
	}
}

func TestCreateDoesNotInvalidateOtherOwners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.List(ctx, "token-b")
	before := f.repo.calls()
	if _, err := f.svc.Create(ctx, "token-a", "a1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = f.svc.List(ctx, "token-b")
	if f.repo.calls() != before {
		t.Fatal("expected user-b list to stay cached after user-a write")
	}
}

func TestDeleteAfterCachedListIsExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep, _ := f.svc.Create(ctx, "token-a", "keep")
	drop, _ := f.svc.Create(ctx, "token-a", "drop")
	if _, err := f.svc.List(ctx, "token-a"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := f.svc.Delete(ctx, "token-a", drop.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	posts, _ := f.svc.List(ctx, "token-a")
	if len(posts) != 1 || posts[0].ID != keep.ID {
		t.Fatalf("expected only kept post, got %+v", posts)
	}
}

func TestListTTLBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "token-a", "hello"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.List(ctx, "token-a"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if f.repo.calls() != 1 {
		t.Fatalf("expected one store read, got %d", f.repo.calls())
	}

	f.clock.Advance(5*time.Minute - time.Millisecond)
	if _, err := f.svc.List(ctx, "token-a"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if f.repo.calls() != 1 {
		t.Fatalf("expected cached read before ttl, store reads=%d", f.repo.calls())
	}

	f.clock.Advance(2 * time.Millisecond)
	if _, err := f.svc.List(ctx, "token-a"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if f.repo.calls() != 2 {
		t.Fatalf("expected store read after ttl, store reads=%d", f.repo.calls())
	}

	f.clock.Advance(time.Minute)
	_, _ = f.svc.List(ctx, "token-a")
	if f.repo.calls() != 2 {
		t.Fatalf("expected repopulated entry to serve reads, store reads=%d", f.repo.calls())
	}
}

func TestDeleteForeignPostReportsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, "token-a", "mine")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Delete(ctx, "token-b", post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, "token-b", 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing post, got %v", err)
	}
	posts, _ := f.svc.List(ctx, "token-a")
	if len(posts) != 1 {
		t.Fatalf("expected post to survive foreign delete, got %+v", posts)
	}
}

func TestCreateValidatesContent(t *testing.T) {
	f := newFixture(t)
	f.svc = New(stubAuthenticator{"token-a": "user-a"}, f.repo, failingCache{}, discardLogger(), 10)
	ctx := context.Background()

	for _, content := range []string{"", "   \n\t", strings.Repeat("x", 11), "a\x00b", "bad\xffutf8"} {
		if _, err := f.svc.Create(ctx, "token-a", content); !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("expected ErrInvalidContent for %q, got %v", content, err)
		}
	}
	if _, err := f.svc.Create(ctx, "token-a", strings.Repeat("x", 10)); err != nil {
		t.Fatalf("expected content at the limit to be accepted, got %v", err)
	}
}

func TestOperationsRequireValidCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "bogus", "hello"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("Create: expected ErrInvalidCredential, got %v", err)
	}
	if _, err := f.svc.List(ctx, ""); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("List: expected ErrInvalidCredential, got %v", err)
	}
	if err := f.svc.Delete(ctx, "bogus", 1); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("Delete: expected ErrInvalidCredential, got %v", err)
	}
	if f.repo.calls() != 0 || len(f.repo.posts) != 0 {
		t.Fatal("store must not be touched without a valid credential")
	}
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	repo := newStubPostRepository()
	svc := New(stubAuthenticator{"token-a": "user-a"}, repo, failingCache{}, discardLogger(), 0)
	ctx := context.Background()

	post, err := svc.Create(ctx, "token-a", "hello")
	if err != nil {
		t.Fatalf("Create must succeed despite cache errors: %v", err)
	}
	posts, err := svc.List(ctx, "token-a")
	if err != nil {
		t.Fatalf("List must succeed despite cache errors: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != post.ID {
		t.Fatalf("unexpected posts %+v", posts)
	}
	if err := svc.Delete(ctx, "token-a", post.ID); err != nil {
		t.Fatalf("Delete must succeed despite cache errors: %v", err)
	}
}

func TestStorageUnavailableIsSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.err = repository.ErrUnavailable

	if _, err := f.svc.Create(ctx, "token-a", "hello"); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("Create: expected ErrUnavailable, got %v", err)
	}
	if _, err := f.svc.List(ctx, "token-a"); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("List: expected ErrUnavailable, got %v", err)
	}
	if err := f.svc.Delete(ctx, "token-a", 1); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("Delete: expected ErrUnavailable, got %v", err)
	}
}

func TestDeleteDuringListDoesNotRepopulateStaleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, "token-a", "doomed")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// the delete commits and invalidates after the list read the store
	f.repo.afterList = func() {
		if err := f.svc.Delete(ctx, "token-a", post.ID); err != nil {
			t.Errorf("Delete: %v", err)
		}
	}
	stale, err := f.svc.List(ctx, "token-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("the in-flight list should still see its own snapshot, got %+v", stale)
	}

	posts, err := f.svc.List(ctx, "token-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("stale list was cached after delete: %+v", posts)
	}
}

func TestListReturnsEmptySliceForNewOwner(t *testing.T) {
	f := newFixture(t)
	posts, err := f.svc.List(context.Background(), "token-b")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", posts)
	}
}
