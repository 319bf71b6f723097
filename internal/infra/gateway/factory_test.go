//go:build !integration

package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
)

type stubResolver struct {
	mu           sync.Mutex
	configs      map[model.Provider]*model.ResolvedConfig
	errs         map[model.Provider]error
	fallbacks    []model.Provider
	fallbackErr  error
	resolveCalls int32
	fallbackHit  bool
}

func (s *stubResolver) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error) {
	atomic.AddInt32(&s.resolveCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[provider]; err != nil {
		return nil, err
	}
	cfg, ok := s.configs[provider]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}

func (s *stubResolver) EnabledProviders(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error) {
	return nil, nil
}

func (s *stubResolver) FallbackProviders(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackHit = true
	return s.fallbacks, s.fallbackErr
}

func TestFactoryResolve(t *testing.T) {
	t.Run("caches one adapter per key", func(t *testing.T) {
		resolver := &stubResolver{configs: map[model.Provider]*model.ResolvedConfig{
			model.ProviderNoop: testConfig(model.ProviderNoop, nil),
		}}
		f := NewFactory(resolver, 5*time.Second, newTestLogger())

		gw1, err := f.Resolve(context.Background(), "merchant-a", model.ProviderNoop, model.EnvTest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		gw2, err := f.Resolve(context.Background(), "merchant-a", model.ProviderNoop, model.EnvTest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gw1 != gw2 {
			t.Error("second resolve built a new adapter instead of using the cache")
		}
		if calls := atomic.LoadInt32(&resolver.resolveCalls); calls != 1 {
			t.Errorf("config resolves: got %d want 1", calls)
		}
	})

	t.Run("disabled provider is rejected", func(t *testing.T) {
		cfg := testConfig(model.ProviderNoop, nil)
		cfg.Enabled = false
		resolver := &stubResolver{configs: map[model.Provider]*model.ResolvedConfig{model.ProviderNoop: cfg}}
		f := NewFactory(resolver, 0, newTestLogger())

		_, err := f.Resolve(context.Background(), "merchant-a", model.ProviderNoop, model.EnvTest)
		if !domain.IsPaymentCode(err, domain.CodeProviderNotConfigured) {
			t.Fatalf("got %v want code %s", err, domain.CodeProviderNotConfigured)
		}
	})

	t.Run("registered provider without an adapter", func(t *testing.T) {
		resolver := &stubResolver{configs: map[model.Provider]*model.ResolvedConfig{
			model.ProviderPaytm: testConfig(model.ProviderPaytm, map[string]string{"merchant_id": "m"}),
		}}
		f := NewFactory(resolver, 0, newTestLogger())

		_, err := f.Resolve(context.Background(), "merchant-a", model.ProviderPaytm, model.EnvTest)
		if !domain.IsPaymentCode(err, domain.CodeAdapterUnavailable) {
			t.Fatalf("got %v want code %s", err, domain.CodeAdapterUnavailable)
		}
	})

	t.Run("clear cache forces a rebuild", func(t *testing.T) {
		resolver := &stubResolver{configs: map[model.Provider]*model.ResolvedConfig{
			model.ProviderNoop: testConfig(model.ProviderNoop, nil),
		}}
		f := NewFactory(resolver, 0, newTestLogger())

		gw1, _ := f.Resolve(context.Background(), "merchant-a", model.ProviderNoop, model.EnvTest)
		f.ClearCache()
		gw2, err := f.Resolve(context.Background(), "merchant-a", model.ProviderNoop, model.EnvTest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gw1 == gw2 {
			t.Error("cache clear did not force a rebuild")
		}
		if calls := atomic.LoadInt32(&resolver.resolveCalls); calls != 2 {
			t.Errorf("config resolves: got %d want 2", calls)
		}
	})
}

func TestFactoryFallback(t *testing.T) {
	t.Run("walks the fallback order past broken providers", func(t *testing.T) {
		resolver := &stubResolver{
			configs: map[model.Provider]*model.ResolvedConfig{
				model.ProviderNoop: testConfig(model.ProviderNoop, nil),
			},
			errs: map[model.Provider]error{
				model.ProviderRazorpay: &domain.ConfigurationError{
					Provider: "razorpay", MissingKeys: []string{"key_secret"},
				},
			},
			fallbacks: []model.Provider{model.ProviderPaytm, model.ProviderNoop},
		}
		f := NewFactory(resolver, 0, newTestLogger())

		gw, err := f.ResolveWithFallback(context.Background(), "merchant-a", model.ProviderRazorpay, model.EnvTest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gw.Provider() != model.ProviderNoop {
			t.Errorf("fallback landed on %q want noop", gw.Provider())
		}
	})

	t.Run("preferred error surfaces when every fallback fails", func(t *testing.T) {
		wantErr := &domain.ConfigurationError{Provider: "razorpay", MissingKeys: []string{"key_id"}}
		resolver := &stubResolver{
			errs:      map[model.Provider]error{model.ProviderRazorpay: wantErr},
			fallbacks: []model.Provider{model.ProviderPaytm},
		}
		f := NewFactory(resolver, 0, newTestLogger())

		_, err := f.ResolveWithFallback(context.Background(), "merchant-a", model.ProviderRazorpay, model.EnvTest)
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Provider != "razorpay" {
			t.Fatalf("got %v want the preferred provider's error", err)
		}
	})

	t.Run("unexpected errors never trigger fallback", func(t *testing.T) {
		dbErr := errors.New("connection refused")
		resolver := &stubResolver{
			errs:      map[model.Provider]error{model.ProviderRazorpay: dbErr},
			fallbacks: []model.Provider{model.ProviderNoop},
		}
		f := NewFactory(resolver, 0, newTestLogger())

		_, err := f.ResolveWithFallback(context.Background(), "merchant-a", model.ProviderRazorpay, model.EnvTest)
		if !errors.Is(err, dbErr) {
			t.Fatalf("got %v want the raw resolver error", err)
		}
		resolver.mu.Lock()
		defer resolver.mu.Unlock()
		if resolver.fallbackHit {
			t.Error("fallback consulted for an error no provider can fix")
		}
	})
}
