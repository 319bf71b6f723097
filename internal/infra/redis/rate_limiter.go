package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per key in a fixed window. The first increment of a
// window stamps the TTL; the counter and its expiry reset together.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow records one hit against key and reports whether it fits the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// New window; bound its lifetime.
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// WebhookSourceKey buckets webhook deliveries per provider and tenant.
func WebhookSourceKey(provider, tenantID string) string {
	return fmt.Sprintf("rate_limit:webhook:%s:%s", provider, tenantID)
}
