package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL covers the retry window of both supported providers.
const DefaultDedupTTL = 72 * time.Hour

// Deduplicator remembers processed webhook event ids. Ids are marked only
// after the event has been applied, so a failed attempt is retried.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

var ErrDedupBackend = errors.New("subscription: dedup backend failure")

type MemoryDeduplicator struct {
	c *cache.Cache
}

func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduplicator{c: cache.New(ttl, ttl/6)}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, eventID string) (bool, error) {
	_, ok := d.c.Get(eventID)
	return ok, nil
}

func (d *MemoryDeduplicator) Mark(_ context.Context, eventID string) error {
	d.c.SetDefault(eventID, struct{}{})
	return nil
}

// RedisDeduplicator shares processed ids across instances.
type RedisDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduplicator {
	if prefix == "" {
		prefix = "billing:event:"
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+eventID).Result()
	if err != nil {
		return false, errors.Join(ErrDedupBackend, err)
	}
	return n > 0, nil
}

func (d *RedisDeduplicator) Mark(ctx context.Context, eventID string) error {
	if err := d.client.SetNX(ctx, d.prefix+eventID, time.Now().UTC().Format(time.RFC3339), d.ttl).Err(); err != nil {
		return errors.Join(ErrDedupBackend, err)
	}
	return nil
}
