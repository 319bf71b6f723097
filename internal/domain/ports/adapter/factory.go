package adapter

import (
	"context"

	"paybridge/internal/domain/model"
)

// Factory hands out configured gateway adapters per tenant and environment.
// Implementations cache adapters; ClearCache forces fresh construction after
// configuration changes.
type Factory interface {
	Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (PaymentGateway, error)
	// ResolveWithFallback tries preferred first, then the tenant's ordered
	// fallback providers. The first provider that yields a working adapter
	// wins; the preferred provider's error surfaces when none do.
	ResolveWithFallback(ctx context.Context, tenantID string, preferred model.Provider, env model.Environment) (PaymentGateway, error)
	ClearCache()
}
