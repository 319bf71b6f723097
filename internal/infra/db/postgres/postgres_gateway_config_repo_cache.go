package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/infra/metrics"
	red "paybridge/internal/infra/redis"
)

var (
	_ repository.GatewayConfigRepository = (*gatewayConfigRepoCacheDecorator)(nil)
	_ repository.ConfigCacheInvalidator  = (*gatewayConfigRepoCacheDecorator)(nil)
)

// gatewayConfigRepoCacheDecorator caches config reads in Redis keyed per
// (tenant, env, provider). Writes invalidate before delegating so a read
// racing a save never pins the old row past the TTL.
type gatewayConfigRepoCacheDecorator struct {
	inner repository.GatewayConfigRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewGatewayConfigRepoCacheDecorator(inner repository.GatewayConfigRepository, cache red.RedisClient, ttl time.Duration) repository.GatewayConfigRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &gatewayConfigRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func configKey(tenantID string, provider model.Provider, env model.Environment) string {
	return fmt.Sprintf("gwcfg:%s:%s:%s", tenantID, env, provider)
}

func configListKey(tenantID string, env model.Environment) string {
	return fmt.Sprintf("gwcfg:list:%s:%s", tenantID, env)
}

func (d *gatewayConfigRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, c *model.GatewayConfig) error {
	_ = d.cache.Del(ctx, configKey(c.TenantID, c.Provider, c.Env), configListKey(c.TenantID, c.Env))
	return d.inner.Save(ctx, tx, c)
}

func (d *gatewayConfigRepoCacheDecorator) Find(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error) {
	// Transactional reads may be taking locks; go straight to the table.
	if tx != nil {
		return d.inner.Find(ctx, tx, tenantID, provider, env)
	}

	key := configKey(tenantID, provider, env)
	if val, err := d.cache.Get(ctx, key); err == nil {
		metrics.IncCacheRequest("gateway_config", "hit")
		var c model.GatewayConfig
		if json.Unmarshal([]byte(val), &c) == nil {
			return &c, nil
		}
	}

	metrics.IncCacheRequest("gateway_config", "miss")
	c, err := d.inner.Find(ctx, tx, tenantID, provider, env)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(c); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return c, nil
}

func (d *gatewayConfigRepoCacheDecorator) ListForTenant(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	if tx != nil {
		return d.inner.ListForTenant(ctx, tx, tenantID, env)
	}

	key := configListKey(tenantID, env)
	if val, err := d.cache.Get(ctx, key); err == nil {
		metrics.IncCacheRequest("gateway_config_list", "hit")
		var list []*model.GatewayConfig
		if json.Unmarshal([]byte(val), &list) == nil {
			return list, nil
		}
	}

	metrics.IncCacheRequest("gateway_config_list", "miss")
	list, err := d.inner.ListForTenant(ctx, tx, tenantID, env)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(list); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return list, nil
}

func (d *gatewayConfigRepoCacheDecorator) TenantExists(ctx context.Context, tx repository.Tx, tenantID string) (bool, error) {
	return d.inner.TenantExists(ctx, tx, tenantID)
}

func (d *gatewayConfigRepoCacheDecorator) InvalidateConfig(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) error {
	return d.cache.Del(ctx, configKey(tenantID, provider, env), configListKey(tenantID, env))
}

func (d *gatewayConfigRepoCacheDecorator) InvalidateTenant(ctx context.Context, tenantID string, env model.Environment) error {
	keys := []string{configListKey(tenantID, env)}
	for _, p := range model.KnownProviders() {
		keys = append(keys, configKey(tenantID, p, env))
	}
	return d.cache.Del(ctx, keys...)
}
