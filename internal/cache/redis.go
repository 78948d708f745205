package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/firi193/lucid/internal/domain"
)

const (
	redisKeyPrefix = "lucid:posts:"
	// versions outlive entries so a slow fill cannot observe a reset counter.
	redisVersionTTL = 24 * time.Hour
)

var errStaleFill = errors.New("cache: stale fill")

type redisEntry struct {
	Posts       []domain.Post `json:"posts"`
	RefreshedAt time.Time     `json:"refreshed_at"`
}

// Redis is a PostCache stored in Redis. Entries carry a server-side expiry equal to the
// TTL; capacity is left to the server's eviction policy.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

var _ PostCache = (*Redis)(nil)

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisWithClient(client, ttl), nil
}

func newRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client:  client,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Get implements PostCache.
func (r *Redis) Get(ctx context.Context, ownerID string) (Lookup, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	values, err := r.client.MGet(ctx, entryKey(ownerID), versionKey(ownerID)).Result()
	if err != nil {
		return Lookup{}, fmt.Errorf("redis mget: %w", err)
	}
	version, err := parseVersion(values[1])
	if err != nil {
		return Lookup{}, err
	}
	lookup := Lookup{Version: version}
	raw, ok := values[0].(string)
	if !ok {
		return lookup, nil
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return lookup, err
	}
	if r.now().Sub(entry.RefreshedAt) >= r.ttl {
		if err := r.client.Del(ctx, entryKey(ownerID)).Err(); err != nil {
			return lookup, fmt.Errorf("redis del: %w", err)
		}
		return lookup, nil
	}
	lookup.Posts = domain.ClonePosts(entry.Posts)
	lookup.Hit = true
	return lookup, nil
}

// Put implements PostCache.
func (r *Redis) Put(ctx context.Context, ownerID string, posts []domain.Post) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := encodeEntry(posts, r.now())
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, entryKey(ownerID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Fill implements PostCache. The version key is watched so a concurrent Invalidate
// aborts the transaction.
func (r *Redis) Fill(ctx context.Context, ownerID string, version uint64, posts []domain.Post) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := encodeEntry(posts, r.now())
	if err != nil {
		return false, err
	}
	vkey := versionKey(ownerID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, vkey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := parseVersion(raw)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey(ownerID), payload, r.ttl)
			return nil
		})
		return err
	}, vkey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis fill: %w", err)
	}
}

// Invalidate implements PostCache.
func (r *Redis) Invalidate(ctx context.Context, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vkey := versionKey(ownerID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKey(ownerID))
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, redisVersionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func entryKey(ownerID string) string {
	return redisKeyPrefix + "entry:" + ownerID
}

func versionKey(ownerID string) string {
	return redisKeyPrefix + "ver:" + ownerID
}

func parseVersion(value any) (uint64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse cache version %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected cache version type %T", value)
	}
}

func encodeEntry(posts []domain.Post, refreshedAt time.Time) ([]byte, error) {
	payload, err := json.Marshal(redisEntry{Posts: domain.ClonePosts(posts), RefreshedAt: refreshedAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(raw string) (redisEntry, error) {
	var entry redisEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return redisEntry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Posts == nil {
		entry.Posts = []domain.Post{}
	}
	return entry, nil
}
