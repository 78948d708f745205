package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/firi193/lucid/internal/domain"
)

type memoryEntry struct {
	posts       []domain.Post
	refreshedAt time.Time
}

// MemoryOptions configures a Memory cache. Zero values pick defaults; a zero
// SweepEvery disables the background janitor.
type MemoryOptions struct {
	TTL        time.Duration
	MaxEntries int
	SweepEvery time.Duration
	Now        func() time.Time
}

// Memory is an in-process PostCache bounded by TTL and entry count.
// Recency follows refresh time: reads never promote an entry, so when the cache is
// full the entry refreshed longest ago is evicted.
type Memory struct {
	mu       sync.Mutex
	entries  *simplelru.LRU[string, memoryEntry]
	versions map[string]uint64
	ttl      time.Duration
	now      func() time.Time

	stopCh chan struct{}
	once   sync.Once
}

var _ PostCache = (*Memory)(nil)

// NewMemory constructs a Memory cache and starts its janitor when configured.
func NewMemory(opts MemoryOptions) (*Memory, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	size := opts.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lru, err := simplelru.NewLRU[string, memoryEntry](size, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c := &Memory{
		entries:  lru,
		versions: make(map[string]uint64),
		ttl:      ttl,
		now:      now,
		stopCh:   make(chan struct{}),
	}
	if opts.SweepEvery > 0 {
		go c.sweepLoop(opts.SweepEvery)
	}
	return c, nil
}

// Get implements PostCache.
func (c *Memory) Get(_ context.Context, ownerID string) (Lookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lookup := Lookup{Version: c.versions[ownerID]}
	entry, ok := c.entries.Peek(ownerID)
	if !ok {
		return lookup, nil
	}
	if !c.valid(entry, c.now()) {
		c.entries.Remove(ownerID)
		return lookup, nil
	}
	lookup.Posts = domain.ClonePosts(entry.posts)
	lookup.Hit = true
	return lookup, nil
}

// Put implements PostCache.
func (c *Memory) Put(_ context.Context, ownerID string, posts []domain.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(ownerID, posts)
	return nil
}

// Fill implements PostCache.
func (c *Memory) Fill(_ context.Context, ownerID string, version uint64, posts []domain.Post) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[ownerID] != version {
		return false, nil
	}
	c.install(ownerID, posts)
	return true, nil
}

// Invalidate implements PostCache.
func (c *Memory) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(ownerID)
	c.versions[ownerID]++
	return nil
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Close stops the janitor.
func (c *Memory) Close() {
	c.once.Do(func() {
		close(c.stopCh)
	})
}

// install must be called with mu held.
func (c *Memory) install(ownerID string, posts []domain.Post) {
	now := c.now()
	if !c.entries.Contains(ownerID) {
		c.purgeExpiredLocked(now)
	}
	c.entries.Add(ownerID, memoryEntry{posts: domain.ClonePosts(posts), refreshedAt: now})
}

func (c *Memory) valid(entry memoryEntry, now time.Time) bool {
	return now.Sub(entry.refreshedAt) < c.ttl
}

// purgeExpiredLocked drops expired entries from the old end of the list. Entries are
// ordered by refresh time, so the first valid entry ends the scan.
func (c *Memory) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for {
		_, entry, ok := c.entries.GetOldest()
		if !ok || c.valid(entry, now) {
			return removed
		}
		c.entries.RemoveOldest()
		removed++
	}
}

func (c *Memory) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.now())
}

func (c *Memory) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}
