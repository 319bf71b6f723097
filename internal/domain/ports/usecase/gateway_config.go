package usecase

import (
	"context"

	"paybridge/internal/domain/model"
)

// ConfigResolver is the resolved-configuration surface other components
// consume: the adapter factory pulls merged credentials through it, and
// fallback routing asks it which providers are live for a tenant.
type ConfigResolver interface {
	// Resolve merges stored fields with secret material for one provider.
	// Disabled providers come back with Enabled false and no secrets.
	Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error)
	// EnabledProviders resolves every enabled provider for the tenant,
	// excluding those whose configuration is broken.
	EnabledProviders(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error)
	// FallbackProviders lists the tenant's providers in priority order,
	// excluding the one that just failed.
	FallbackProviders(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error)
}
