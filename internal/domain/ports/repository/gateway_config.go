package repository

import (
	"context"

	"paybridge/internal/domain/model"
)

type GatewayConfigRepository interface {
	Save(ctx context.Context, qx Tx, c *model.GatewayConfig) error
	Find(ctx context.Context, qx Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error)
	// ListForTenant returns configs for one tenant and environment ordered
	// by priority.
	ListForTenant(ctx context.Context, qx Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error)
	// TenantExists backs webhook tenant resolution; unknown tenants 404
	// before any adapter work happens.
	TenantExists(ctx context.Context, qx Tx, tenantID string) (bool, error)
}

// ConfigCacheInvalidator is implemented by caching decorators around a
// GatewayConfigRepository so config changes can drop stale entries without
// waiting for the TTL. Callers type-assert; a bare repository simply has
// nothing to invalidate.
type ConfigCacheInvalidator interface {
	InvalidateConfig(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) error
	InvalidateTenant(ctx context.Context, tenantID string, env model.Environment) error
}
