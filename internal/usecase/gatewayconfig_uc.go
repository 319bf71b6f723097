package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/domain/ports/secrets"
	"paybridge/internal/infra/logging"
)

// Compile-time check
var _ GatewayConfigUseCase = (*gatewayConfigUC)(nil)

// GatewayConfigUseCase resolves and administers provider configurations.
// Resolution merges two sources: non-secret fields stored per tenant and
// secret material from the environment. The same key appearing in both is a
// deployment mistake and fails hard rather than silently picking a winner.
type GatewayConfigUseCase interface {
	// Resolve returns the merged config for one provider. Disabled providers
	// come back with Enabled and Valid false and their secrets untouched.
	// Missing required keys are all reported at once via ConfigurationError.
	Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error)
	// EnabledProviders resolves every enabled provider for a tenant in
	// priority order. Misconfigured providers are logged and excluded;
	// storage errors propagate.
	EnabledProviders(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error)
	// FallbackProviders lists the tenant's working providers in priority
	// order with exclude removed.
	FallbackProviders(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error)
	// Upsert stores a config and drops any cached copy.
	Upsert(ctx context.Context, cfg *model.GatewayConfig) error
	ListForTenant(ctx context.Context, tenantID string, env model.Environment) ([]*model.GatewayConfig, error)
}

type gatewayConfigUC struct {
	configs repository.GatewayConfigRepository
	secrets secrets.Source
	log     *zerolog.Logger
}

func NewGatewayConfigUseCase(configs repository.GatewayConfigRepository, secretSource secrets.Source, logger *zerolog.Logger) *gatewayConfigUC {
	return &gatewayConfigUC{
		configs: configs,
		secrets: secretSource,
		log:     logger,
	}
}

// Resolve merges stored fields with environment secrets for one provider.
// Only required keys are looked up in the environment; extra stored fields
// (endpoint overrides, flags) pass through untouched.
func (u *gatewayConfigUC) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error) {
	defer logging.TraceDuration(u.log, "GatewayConfigUC.Resolve")()

	if _, ok := model.Capabilities(provider); !ok {
		return nil, domain.ErrProviderUnknown
	}
	stored, err := u.configs.Find(ctx, repository.NoTX, tenantID, provider, env)
	if err != nil {
		return nil, err
	}

	resolved := &model.ResolvedConfig{
		Provider: provider,
		Env:      env,
		TenantID: tenantID,
		Enabled:  stored.Enabled,
	}
	if !stored.Enabled {
		// Secrets are never read for a disabled provider.
		return resolved, nil
	}

	fields := make(map[string]string, len(stored.Fields))
	for k, v := range stored.Fields {
		fields[k] = v
	}

	required := model.RequiredConfigKeys(provider)
	var conflicts []string
	for _, key := range required {
		secret, ok := u.secrets.Lookup(provider, env, key)
		if !ok {
			continue
		}
		if _, dup := fields[key]; dup {
			conflicts = append(conflicts, key)
			continue
		}
		fields[key] = secret
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(fields[key]) == "" {
			missing = append(missing, key)
		}
	}

	if len(conflicts) > 0 || len(missing) > 0 {
		sort.Strings(conflicts)
		sort.Strings(missing)
		resolved.Fields = fields
		return resolved, &domain.ConfigurationError{
			Provider:    string(provider),
			Environment: string(env),
			Tenant:      tenantID,
			MissingKeys: missing,
			Conflicts:   conflicts,
		}
	}

	resolved.Valid = true
	resolved.Fields = fields
	return resolved, nil
}

func (u *gatewayConfigUC) EnabledProviders(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error) {
	defer logging.TraceDuration(u.log, "GatewayConfigUC.EnabledProviders")()

	stored, err := u.configs.ListForTenant(ctx, repository.NoTX, tenantID, env)
	if err != nil {
		return nil, err
	}

	// Resolve concurrently into fixed slots so the priority order from the
	// repository survives.
	results := make([]*model.ResolvedConfig, len(stored))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range stored {
		if !c.Enabled {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			cfg, rerr := u.Resolve(gctx, tenantID, c.Provider, env)
			if rerr != nil {
				var cfgErr *domain.ConfigurationError
				if errors.As(rerr, &cfgErr) {
					u.log.Warn().
						Str("tenant_id", tenantID).
						Str("provider", string(c.Provider)).
						Err(rerr).
						Msg("excluding misconfigured provider")
					return nil
				}
				return rerr
			}
			results[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*model.ResolvedConfig, 0, len(results))
	for _, cfg := range results {
		if cfg != nil {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (u *gatewayConfigUC) FallbackProviders(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error) {
	cfgs, err := u.EnabledProviders(ctx, tenantID, env)
	if err != nil {
		return nil, err
	}
	out := make([]model.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Provider == exclude {
			continue
		}
		out = append(out, cfg.Provider)
	}
	return out, nil
}

func (u *gatewayConfigUC) Upsert(ctx context.Context, cfg *model.GatewayConfig) error {
	if cfg == nil || cfg.TenantID == "" {
		return domain.ErrInvalidArgument
	}
	if _, ok := model.Capabilities(cfg.Provider); !ok {
		return domain.ErrProviderUnknown
	}
	if err := u.configs.Save(ctx, repository.NoTX, cfg); err != nil {
		return err
	}
	u.dropCached(ctx, cfg.TenantID, cfg.Provider, cfg.Env)
	return nil
}

func (u *gatewayConfigUC) ListForTenant(ctx context.Context, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	return u.configs.ListForTenant(ctx, repository.NoTX, tenantID, env)
}

// dropCached invalidates the caching decorator when one wraps the repo. A
// bare repository has nothing to drop.
func (u *gatewayConfigUC) dropCached(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) {
	inv, ok := u.configs.(repository.ConfigCacheInvalidator)
	if !ok {
		return
	}
	if err := inv.InvalidateConfig(ctx, tenantID, provider, env); err != nil {
		u.log.Warn().
			Str("tenant_id", tenantID).
			Str("provider", string(provider)).
			Err(err).
			Msg("config cache invalidation failed")
	}
}
