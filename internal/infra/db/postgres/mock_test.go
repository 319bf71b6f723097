//go:build !integration

package postgres

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
	red "paybridge/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerGatewayConfigRepo mocks the database repository that the config
// decorator wraps.
type mockInnerGatewayConfigRepo struct {
	SaveFunc          func(ctx context.Context, tx repository.Tx, c *model.GatewayConfig) error
	FindFunc          func(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error)
	ListForTenantFunc func(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error)
	TenantExistsFunc  func(ctx context.Context, tx repository.Tx, tenantID string) (bool, error)
}

func (m *mockInnerGatewayConfigRepo) Save(ctx context.Context, tx repository.Tx, c *model.GatewayConfig) error {
	return m.SaveFunc(ctx, tx, c)
}
func (m *mockInnerGatewayConfigRepo) Find(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error) {
	return m.FindFunc(ctx, tx, tenantID, provider, env)
}
func (m *mockInnerGatewayConfigRepo) ListForTenant(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	return m.ListForTenantFunc(ctx, tx, tenantID, env)
}
func (m *mockInnerGatewayConfigRepo) TenantExists(ctx context.Context, tx repository.Tx, tenantID string) (bool, error) {
	return m.TenantExistsFunc(ctx, tx, tenantID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
