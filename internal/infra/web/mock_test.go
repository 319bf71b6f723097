package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	red "paybridge/internal/infra/redis"
	"paybridge/internal/usecase"
)

// Mocks sit at the use case seam the server depends on. Lifecycle and
// routing behavior behind these interfaces has its own tests; here only the
// HTTP mapping is under test.

var errNotStubbed = errors.New("mock: not stubbed")

var (
	_ usecase.PaymentUseCase       = (*mockPaymentUC)(nil)
	_ usecase.WebhookUseCase       = (*mockWebhookUC)(nil)
	_ usecase.GatewayConfigUseCase = (*mockConfigUC)(nil)
	_ adapter.Factory              = (*mockFactory)(nil)
)

type mockPaymentUC struct {
	CreateFunc       func(ctx context.Context, p usecase.CreateParams) (*usecase.CreateResult, error)
	GetFunc          func(ctx context.Context, tenantID, paymentID string) (*model.Payment, error)
	VerifyFunc       func(ctx context.Context, tenantID, paymentID string) (*model.Payment, bool, error)
	CaptureFunc      func(ctx context.Context, tenantID, paymentID string, amount int64) (*model.Payment, error)
	CreateRefundFunc func(ctx context.Context, p usecase.RefundParams) (*model.Refund, error)
	RefundStatusFunc func(ctx context.Context, tenantID, refundID string) (*model.Refund, error)

	CreateCalls int
}

func (m *mockPaymentUC) Create(ctx context.Context, p usecase.CreateParams) (*usecase.CreateResult, error) {
	m.CreateCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentUC) Get(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, paymentID)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentUC) Verify(ctx context.Context, tenantID, paymentID string) (*model.Payment, bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, tenantID, paymentID)
	}
	return nil, false, errNotStubbed
}

func (m *mockPaymentUC) Capture(ctx context.Context, tenantID, paymentID string, amount int64) (*model.Payment, error) {
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, tenantID, paymentID, amount)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentUC) CreateRefund(ctx context.Context, p usecase.RefundParams) (*model.Refund, error) {
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, p)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentUC) RefundStatus(ctx context.Context, tenantID, refundID string) (*model.Refund, error) {
	if m.RefundStatusFunc != nil {
		return m.RefundStatusFunc(ctx, tenantID, refundID)
	}
	return nil, errNotStubbed
}

type mockWebhookUC struct {
	ProcessFunc  func(ctx context.Context, in usecase.WebhookInput) (*usecase.WebhookOutcome, error)
	ProcessCalls int
	LastInput    usecase.WebhookInput
}

func (m *mockWebhookUC) Process(ctx context.Context, in usecase.WebhookInput) (*usecase.WebhookOutcome, error) {
	m.ProcessCalls++
	m.LastInput = in
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, in)
	}
	return nil, errNotStubbed
}

type mockConfigUC struct {
	ResolveFunc           func(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error)
	EnabledProvidersFunc  func(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error)
	FallbackProvidersFunc func(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error)
	UpsertFunc            func(ctx context.Context, cfg *model.GatewayConfig) error
	ListForTenantFunc     func(ctx context.Context, tenantID string, env model.Environment) ([]*model.GatewayConfig, error)

	UpsertCalls int
}

func (m *mockConfigUC) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (*model.ResolvedConfig, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, tenantID, provider, env)
	}
	return nil, errNotStubbed
}

func (m *mockConfigUC) EnabledProviders(ctx context.Context, tenantID string, env model.Environment) ([]*model.ResolvedConfig, error) {
	if m.EnabledProvidersFunc != nil {
		return m.EnabledProvidersFunc(ctx, tenantID, env)
	}
	return nil, errNotStubbed
}

func (m *mockConfigUC) FallbackProviders(ctx context.Context, tenantID string, env model.Environment, exclude model.Provider) ([]model.Provider, error) {
	if m.FallbackProvidersFunc != nil {
		return m.FallbackProvidersFunc(ctx, tenantID, env, exclude)
	}
	return nil, errNotStubbed
}

func (m *mockConfigUC) Upsert(ctx context.Context, cfg *model.GatewayConfig) error {
	m.UpsertCalls++
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, cfg)
	}
	return nil
}

func (m *mockConfigUC) ListForTenant(ctx context.Context, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	if m.ListForTenantFunc != nil {
		return m.ListForTenantFunc(ctx, tenantID, env)
	}
	return []*model.GatewayConfig{}, nil
}

type mockFactory struct {
	ResolveFunc     func(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (adapter.PaymentGateway, error)
	ClearCacheCalls int
}

func (m *mockFactory) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, tenantID, provider, env)
	}
	return nil, errNotStubbed
}

func (m *mockFactory) ResolveWithFallback(ctx context.Context, tenantID string, preferred model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	return m.Resolve(ctx, tenantID, preferred, env)
}

func (m *mockFactory) ClearCache() { m.ClearCacheCalls++ }

// countingRedis backs the webhook rate limiter in tests: Incr counts per
// key, everything else is inert.
type countingRedis struct {
	mu     sync.Mutex
	counts map[string]int64
}

var _ red.RedisClient = (*countingRedis)(nil)

func newCountingRedis() *countingRedis {
	return &countingRedis{counts: make(map[string]int64)}
}

func (c *countingRedis) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *countingRedis) Ping(ctx context.Context) error { return nil }

func (c *countingRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (c *countingRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}

func (c *countingRedis) Get(ctx context.Context, key string) (string, error) {
	return "", errNotStubbed
}

func (c *countingRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (c *countingRedis) Del(ctx context.Context, keys ...string) error { return nil }

func (c *countingRedis) Close() error { return nil }
