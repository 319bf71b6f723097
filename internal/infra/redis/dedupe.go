// File: internal/infra/redis/dedupe.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// WebhookDeduper answers "was this delivery already accepted" without
// touching the database. It is a fast path only: the webhooks table unique
// key stays the authority, this just short-circuits the common replay burst.
// Mark is called only after the delivery is durably recorded, so a rejected
// delivery never looks processed on retry.
type WebhookDeduper interface {
	Seen(ctx context.Context, provider, dedupeKey string) (bool, error)
	Mark(ctx context.Context, provider, dedupeKey string) error
}

type redisDeduper struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func (d *redisDeduper) key(provider, dedupeKey string) string {
	return d.prefix + ":" + provider + ":" + dedupeKey
}

func (d *redisDeduper) Seen(ctx context.Context, provider, dedupeKey string) (bool, error) {
	_, err := d.client.Get(ctx, d.key(provider, dedupeKey))
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *redisDeduper) Mark(ctx context.Context, provider, dedupeKey string) error {
	return d.client.Set(ctx, d.key(provider, dedupeKey), "1", d.ttl)
}

type memoryDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryDeduper(ttl time.Duration) *memoryDeduper {
	now := time.Now()
	return &memoryDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (d *memoryDeduper) Seen(_ context.Context, provider, dedupeKey string) (bool, error) {
	key := provider + ":" + dedupeKey
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.seen[key]
	return ok && exp.After(now), nil
}

func (d *memoryDeduper) Mark(_ context.Context, provider, dedupeKey string) error {
	key := provider + ":" + dedupeKey
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return nil
}

// NewWebhookDeduper builds a Redis-backed deduper, or an in-memory one when
// no client is available.
func NewWebhookDeduper(client RedisClient, ttl time.Duration) WebhookDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		return newMemoryDeduper(ttl)
	}
	return &redisDeduper{client: client, prefix: "webhook:seen", ttl: ttl}
}
