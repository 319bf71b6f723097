package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	"paybridge/internal/domain/ports/usecase"
	"paybridge/internal/infra/metrics"
)

type factoryKey struct {
	provider model.Provider
	env      model.Environment
	tenant   string
}

// Factory builds and caches one adapter per (provider, environment, tenant).
// Construction validates configuration, so a cached adapter is a working one.
type Factory struct {
	resolver usecase.ConfigResolver
	timeout  time.Duration
	log      *zerolog.Logger

	mu    sync.Mutex
	cache map[factoryKey]adapter.PaymentGateway
}

var _ adapter.Factory = (*Factory)(nil)

func NewFactory(resolver usecase.ConfigResolver, timeout time.Duration, logger *zerolog.Logger) *Factory {
	return &Factory{
		resolver: resolver,
		timeout:  timeout,
		log:      logger,
		cache:    make(map[factoryKey]adapter.PaymentGateway),
	}
}

func (f *Factory) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	key := factoryKey{provider: provider, env: env, tenant: tenantID}
	f.mu.Lock()
	if gw, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return gw, nil
	}
	f.mu.Unlock()

	// Config resolution can hit the network; never hold the lock across it.
	cfg, err := f.resolver.Resolve(ctx, tenantID, provider, env)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, domain.NewPaymentError(domain.CodeProviderNotConfigured, string(provider),
			"provider disabled for tenant "+tenantID, nil)
	}

	gw, err := f.build(cfg)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[key] = gw
	f.mu.Unlock()
	return gw, nil
}

func (f *Factory) ResolveWithFallback(ctx context.Context, tenantID string, preferred model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	gw, err := f.Resolve(ctx, tenantID, preferred, env)
	if err == nil {
		return gw, nil
	}
	if !fallbackEligible(err) {
		return nil, err
	}

	fallbacks, ferr := f.resolver.FallbackProviders(ctx, tenantID, env, preferred)
	if ferr != nil {
		return nil, err
	}
	for _, p := range fallbacks {
		gw, ferr := f.Resolve(ctx, tenantID, p, env)
		if ferr != nil {
			continue
		}
		metrics.IncAdapterFallback(string(preferred), string(p))
		f.log.Warn().
			Str("tenant_id", tenantID).
			Str("from", string(preferred)).
			Str("to", string(p)).
			Str("env", string(env)).
			Msg("gateway fallback engaged")
		return gw, nil
	}
	return nil, err
}

// ClearCache drops every cached adapter so changed configuration takes
// effect on the next resolve.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	f.cache = make(map[factoryKey]adapter.PaymentGateway)
	f.mu.Unlock()
	f.log.Debug().Msg("adapter cache cleared")
}

func (f *Factory) build(cfg *model.ResolvedConfig) (adapter.PaymentGateway, error) {
	switch cfg.Provider {
	case model.ProviderRazorpay:
		return NewRazorpayAdapter(cfg, f.timeout, f.log)
	case model.ProviderPayU:
		return NewPayUAdapter(cfg, f.timeout, f.log)
	case model.ProviderCashfree:
		return NewCashfreeAdapter(cfg, f.timeout, f.log)
	case model.ProviderPhonePe:
		return NewPhonePeAdapter(cfg, f.timeout, f.log)
	case model.ProviderNoop:
		return NewNoopAdapter(cfg, f.log), nil
	default:
		// Registered capability, no adapter shipped yet.
		return nil, domain.NewPaymentError(domain.CodeAdapterUnavailable, string(cfg.Provider),
			"no adapter available for provider", nil)
	}
}

// fallbackEligible separates "this provider cannot serve" from errors a
// different provider would hit just the same.
func fallbackEligible(err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return true
	}
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		switch pe.Code {
		case domain.CodeProviderNotConfigured, domain.CodeAdapterUnavailable:
			return true
		}
	}
	return false
}
