// Package cache holds the per-owner post cache that sits in front of the post store.
//
// Every key is an owner (user) id and every value is that owner's full post list in
// creation order. Entries expire after a fixed TTL and are invalidated synchronously by
// writes. Each owner also carries an invalidation version: Fill installs a list only if
// no Invalidate happened since the Get that reported the version, so a slow read can
// never re-install a list that a concurrent write already made stale.
package cache

import (
	"context"
	"time"

	"github.com/firi193/lucid/internal/domain"
)

const (
	// DefaultTTL is the validity window of a cache entry.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds the in-process cache.
	DefaultMaxEntries = 100
)

// Lookup is the result of a cache read.
type Lookup struct {
	Posts   []domain.Post
	Hit     bool
	Version uint64
}

// PostCache caches owner post lists. Implementations must be safe for concurrent use.
type PostCache interface {
	// Get returns the owner's posts when a valid entry exists. Expired entries are
	// dropped and reported as misses.
	Get(ctx context.Context, ownerID string) (Lookup, error)
	// Put installs posts for the owner unconditionally.
	Put(ctx context.Context, ownerID string, posts []domain.Post) error
	// Fill installs posts only when the owner's version still equals version.
	Fill(ctx context.Context, ownerID string, version uint64, posts []domain.Post) (bool, error)
	// Invalidate drops the owner's entry and bumps its version. Idempotent.
	Invalidate(ctx context.Context, ownerID string) error
}
