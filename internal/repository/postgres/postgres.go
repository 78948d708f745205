package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/firi193/lucid/internal/domain"
	"github.com/firi193/lucid/internal/repository"
)

const uniqueViolation = "23505"

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool Querier
}

// New constructs a Repository.
func New(pool Querier) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.PostRepository = (*Repository)(nil)
)

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return unavailable("insert user", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, unavailable("select user", err)
	}
	return &u, nil
}

// CreatePost inserts a post and fills in its generated id and timestamp.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	const query = `INSERT INTO posts (user_id, content)
		VALUES ($1, $2)
		RETURNING id, created_at`
	row := r.pool.QueryRow(ctx, query, post.OwnerID, post.Content)
	if err := row.Scan(&post.ID, &post.CreatedAt); err != nil {
		return unavailable("insert post", err)
	}
	return nil
}

// ListPostsByOwner returns posts for the owner in creation order.
func (r *Repository) ListPostsByOwner(ctx context.Context, ownerID string) ([]domain.Post, error) {
	const query = `SELECT id, user_id, content, created_at
		FROM posts WHERE user_id = $1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, unavailable("list posts", err)
	}
	defer rows.Close()

	posts := make([]domain.Post, 0)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Content, &p.CreatedAt); err != nil {
			return nil, unavailable("scan post", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate posts", err)
	}
	return posts, nil
}

// GetPostByID retrieves a post by identifier.
func (r *Repository) GetPostByID(ctx context.Context, postID int64) (*domain.Post, error) {
	const query = `SELECT id, user_id, content, created_at FROM posts WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, postID)
	var p domain.Post
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Content, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, unavailable("select post", err)
	}
	return &p, nil
}

// DeletePost removes a post owned by ownerID.
func (r *Repository) DeletePost(ctx context.Context, postID int64, ownerID string) error {
	const query = `DELETE FROM posts WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, postID, ownerID)
	if err != nil {
		return unavailable("delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", repository.ErrUnavailable, op, err)
}
