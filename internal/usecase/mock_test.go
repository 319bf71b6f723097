//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	"paybridge/internal/domain/ports/recon"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/domain/ports/secrets"
	"paybridge/internal/infra/redis"
)

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu     sync.Mutex
	data   map[string]*model.Payment // by id
	byPPID map[string]string         // provider|provider_payment_id -> id

	// UpdateCalls counts writes that actually landed, so tests can assert
	// the zero-write guarantee of suppressed transitions.
	UpdateCalls int

	SaveFunc                    func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByIDFunc                func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	FindByProviderPaymentIDFunc func(ctx context.Context, tx repository.Tx, provider model.Provider, ppid string) (*model.Payment, error)
	UpdateStatusIfOpenFunc      func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, ppid *string, capturedAt *time.Time) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byPPID: map[string]string{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	if p.ProviderPaymentID != "" {
		r.byPPID[string(p.Provider)+"|"+p.ProviderPaymentID] = p.ID
	}
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPaymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, provider model.Provider, ppid string) (*model.Payment, error) {
	if r.FindByProviderPaymentIDFunc != nil {
		return r.FindByProviderPaymentIDFunc(ctx, tx, provider, ppid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPPID[string(provider)+"|"+ppid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.data[id]
	return &cp, nil
}

func (r *MockPaymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MockPaymentRepo) CapturedExistsForOrder(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.OrderID == orderID && p.Status == model.PaymentStatusCaptured {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, ppid *string, capturedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.apply(p, status, ppid, capturedAt)
	return nil
}

func (r *MockPaymentRepo) UpdateStatusIfOpen(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, ppid *string, capturedAt *time.Time) (bool, error) {
	if r.UpdateStatusIfOpenFunc != nil {
		return r.UpdateStatusIfOpenFunc(ctx, tx, id, status, ppid, capturedAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status.IsTerminal() {
		return false, nil
	}
	r.apply(p, status, ppid, capturedAt)
	return true, nil
}

// apply mirrors the conditional update: provider id and capture time only
// fill empty columns, a failing status stamps the failure time.
// apply mirrors the SQL update: nil pointers keep the stored column, non-nil
// values replace it.
func (r *MockPaymentRepo) apply(p *model.Payment, status model.PaymentStatus, ppid *string, capturedAt *time.Time) {
	r.UpdateCalls++
	p.Status = status
	p.UpdatedAt = time.Now()
	if ppid != nil {
		if p.ProviderPaymentID != "" {
			delete(r.byPPID, string(p.Provider)+"|"+p.ProviderPaymentID)
		}
		p.ProviderPaymentID = *ppid
		r.byPPID[string(p.Provider)+"|"+*ppid] = p.ID
	}
	if capturedAt != nil {
		p.CapturedAt = capturedAt
	}
	if (status == model.PaymentStatusFailed || status == model.PaymentStatusCancelled) && p.FailedAt == nil {
		now := time.Now()
		p.FailedAt = &now
	}
}

func (r *MockPaymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if !p.Status.IsTerminal() && p.UpdatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) SumCapturedByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, p := range r.data {
		if p.Status == model.PaymentStatusCaptured {
			sum += p.Amount
		}
	}
	return sum, nil
}

// Get returns the stored payment for assertions.
func (r *MockPaymentRepo) Get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// Put seeds a payment directly.
func (r *MockPaymentRepo) Put(p *model.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	if p.ProviderPaymentID != "" {
		r.byPPID[string(p.Provider)+"|"+p.ProviderPaymentID] = p.ID
	}
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu   sync.Mutex
	data map[string]*model.Order

	TransitionCalls int

	TransitionStateFunc func(ctx context.Context, tx repository.Tx, id string, from, to model.OrderState, paymentID *string, failedAt *time.Time) (bool, error)
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{data: map[string]*model.Order{}}
}

func (r *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.data[o.ID] = &cp
	return nil
}

func (r *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MockOrderRepo) TransitionState(ctx context.Context, tx repository.Tx, id string, from, to model.OrderState, paymentID *string, failedAt *time.Time) (bool, error) {
	if r.TransitionStateFunc != nil {
		return r.TransitionStateFunc(ctx, tx, id, from, to, paymentID, failedAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.State != from {
		return false, nil
	}
	r.TransitionCalls++
	o.State = to
	o.UpdatedAt = time.Now()
	if paymentID != nil {
		pid := *paymentID
		o.PaymentID = &pid
	}
	if failedAt != nil {
		at := *failedAt
		o.FailedAt = &at
	}
	return true, nil
}

func (r *MockOrderRepo) Get(id string) *model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.data[id]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (r *MockOrderRepo) Put(o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.data[o.ID] = &cp
}

// ---- Mock RefundRepository ----

type MockRefundRepo struct {
	mu   sync.Mutex
	data map[string]*model.Refund
}

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{data: map[string]*model.Refund{}}
}

func (r *MockRefundRepo) Save(ctx context.Context, tx repository.Tx, rf *model.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rf
	r.data[rf.ID] = &cp
	return nil
}

func (r *MockRefundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rf
	return &cp, nil
}

func (r *MockRefundRepo) FindByProviderRefundID(ctx context.Context, tx repository.Tx, provider model.Provider, providerRefundID string) (*model.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rf := range r.data {
		if rf.Provider == provider && rf.ProviderRefundID == providerRefundID {
			cp := *rf
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockRefundRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Refund
	for _, rf := range r.data {
		if rf.PaymentID == paymentID {
			cp := *rf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MockRefundRepo) SumReservedByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, rf := range r.data {
		if rf.PaymentID != paymentID {
			continue
		}
		switch rf.Status {
		case model.RefundStatusPending, model.RefundStatusProcessing, model.RefundStatusCompleted:
			sum += rf.Amount
		}
	}
	return sum, nil
}

func (r *MockRefundRepo) SumCompletedByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, rf := range r.data {
		if rf.PaymentID == paymentID && rf.Status == model.RefundStatusCompleted {
			sum += rf.Amount
		}
	}
	return sum, nil
}

func (r *MockRefundRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.RefundStatus, providerRefundID *string, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	rf.Status = status
	rf.UpdatedAt = time.Now()
	if providerRefundID != nil {
		rf.ProviderRefundID = *providerRefundID
	}
	if completedAt != nil {
		at := *completedAt
		rf.CompletedAt = &at
	}
	return nil
}

func (r *MockRefundRepo) Get(id string) *model.Refund {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rf, ok := r.data[id]; ok {
		cp := *rf
		return &cp
	}
	return nil
}

func (r *MockRefundRepo) Put(rf *model.Refund) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rf
	r.data[rf.ID] = &cp
}

// ---- Mock WebhookRepository ----

type MockWebhookRepo struct {
	mu     sync.Mutex
	data   map[string]*model.WebhookRecord // by id
	byKey  map[string]string               // provider|dedupe_key -> id
	Events []string                        // insert order, for assertions

	InsertFunc        func(ctx context.Context, tx repository.Tx, w *model.WebhookRecord) error
	MarkProcessedFunc func(ctx context.Context, tx repository.Tx, id string, at time.Time) error
}

var _ repository.WebhookRepository = (*MockWebhookRepo)(nil)

func NewMockWebhookRepo() *MockWebhookRepo {
	return &MockWebhookRepo{data: map[string]*model.WebhookRecord{}, byKey: map[string]string{}}
}

func (r *MockWebhookRepo) Insert(ctx context.Context, tx repository.Tx, w *model.WebhookRecord) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, w)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := string(w.Provider) + "|" + w.DedupeKey
	if _, ok := r.byKey[k]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *w
	r.data[w.ID] = &cp
	r.byKey[k] = w.ID
	r.Events = append(r.Events, w.EventType)
	return nil
}

func (r *MockWebhookRepo) FindByDedupeKey(ctx context.Context, tx repository.Tx, provider model.Provider, dedupeKey string) (*model.WebhookRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[string(provider)+"|"+dedupeKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.data[id]
	return &cp, nil
}

func (r *MockWebhookRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	if r.MarkProcessedFunc != nil {
		return r.MarkProcessedFunc(ctx, tx, id, at)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.Processed = true
	w.ProcessedAt = &at
	return nil
}

func (r *MockWebhookRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string, limit int) ([]*model.WebhookRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookRecord
	for _, w := range r.data {
		if w.OrderID == orderID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns all stored records for assertions.
func (r *MockWebhookRepo) Records() []*model.WebhookRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookRecord
	for _, w := range r.data {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// ---- Mock GatewayConfigRepository ----

type MockGatewayConfigRepo struct {
	mu   sync.Mutex
	data map[string]*model.GatewayConfig // tenant|provider|env

	FindFunc          func(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error)
	ListForTenantFunc func(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error)
}

var _ repository.GatewayConfigRepository = (*MockGatewayConfigRepo)(nil)

func NewMockGatewayConfigRepo() *MockGatewayConfigRepo {
	return &MockGatewayConfigRepo{data: map[string]*model.GatewayConfig{}}
}

func configKey(tenantID string, provider model.Provider, env model.Environment) string {
	return tenantID + "|" + string(provider) + "|" + string(env)
}

func (r *MockGatewayConfigRepo) Save(ctx context.Context, tx repository.Tx, c *model.GatewayConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.data[configKey(c.TenantID, c.Provider, c.Env)] = &cp
	return nil
}

func (r *MockGatewayConfigRepo) Find(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error) {
	if r.FindFunc != nil {
		return r.FindFunc(ctx, tx, tenantID, provider, env)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[configKey(tenantID, provider, env)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockGatewayConfigRepo) ListForTenant(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	if r.ListForTenantFunc != nil {
		return r.ListForTenantFunc(ctx, tx, tenantID, env)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.GatewayConfig
	for _, c := range r.data {
		if c.TenantID == tenantID && c.Env == env {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *MockGatewayConfigRepo) TenantExists(ctx context.Context, tx repository.Tx, tenantID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.data {
		if c.TenantID == tenantID {
			return true, nil
		}
	}
	return false, nil
}

// InvalidatingConfigRepo adds the cache-invalidator surface on top of the
// plain mock, mirroring the caching decorator.
type InvalidatingConfigRepo struct {
	*MockGatewayConfigRepo
	mu          sync.Mutex
	Invalidated []string
}

var _ repository.ConfigCacheInvalidator = (*InvalidatingConfigRepo)(nil)

func NewInvalidatingConfigRepo() *InvalidatingConfigRepo {
	return &InvalidatingConfigRepo{MockGatewayConfigRepo: NewMockGatewayConfigRepo()}
}

func (r *InvalidatingConfigRepo) InvalidateConfig(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invalidated = append(r.Invalidated, configKey(tenantID, provider, env))
	return nil
}

func (r *InvalidatingConfigRepo) InvalidateTenant(ctx context.Context, tenantID string, env model.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invalidated = append(r.Invalidated, tenantID+"|*|"+string(env))
	return nil
}

// ---- Mock IdempotencyRepository ----

type MockIdempotencyRepo struct {
	mu   sync.Mutex
	data map[string]*model.IdempotencyRecord // scope|key

	ClaimFunc func(ctx context.Context, tx repository.Tx, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error)
}

var _ repository.IdempotencyRepository = (*MockIdempotencyRepo)(nil)

func NewMockIdempotencyRepo() *MockIdempotencyRepo {
	return &MockIdempotencyRepo{data: map[string]*model.IdempotencyRecord{}}
}

func idemKey(key, scope string) string { return scope + "|" + key }

func (r *MockIdempotencyRepo) Claim(ctx context.Context, tx repository.Tx, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error) {
	if r.ClaimFunc != nil {
		return r.ClaimFunc(ctx, tx, rec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.data[idemKey(rec.Key, rec.Scope)]; ok {
		cp := *ex
		return &cp, domain.ErrAlreadyExists
	}
	cp := *rec
	r.data[idemKey(rec.Key, rec.Scope)] = &cp
	return rec, nil
}

func (r *MockIdempotencyRepo) Find(ctx context.Context, tx repository.Tx, key, scope string) (*model.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[idemKey(key, scope)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MockIdempotencyRepo) Complete(ctx context.Context, tx repository.Tx, key, scope string, response []byte, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[idemKey(key, scope)]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = model.IdempotencyCompleted
	rec.Response = append([]byte(nil), response...)
	rec.ExpiresAt = expiresAt
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *MockIdempotencyRepo) Release(ctx context.Context, tx repository.Tx, key, scope string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, idemKey(key, scope))
	return nil
}

func (r *MockIdempotencyRepo) DeleteExpired(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.data {
		if rec.Expired(before) {
			delete(r.data, k)
			n++
		}
	}
	return n, nil
}

func (r *MockIdempotencyRepo) Get(key, scope string) *model.IdempotencyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.data[idemKey(key, scope)]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

func (r *MockIdempotencyRepo) Put(rec *model.IdempotencyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.data[idemKey(rec.Key, rec.Scope)] = &cp
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs the function immediately without a real transaction. Tests that
// need transactional behavior assign WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Gateway and factory
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu       sync.Mutex
	provider model.Provider

	CreateCalls        int
	VerifyCalls        int
	CaptureCalls       int
	RefundCalls        int
	RefundStatusCalls  int
	VerifyWebhookCalls int

	CreatePaymentFunc  func(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error)
	VerifyPaymentFunc  func(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error)
	CapturePaymentFunc func(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error)
	CreateRefundFunc   func(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error)
	RefundStatusFunc   func(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error)
	VerifyWebhookFunc  func(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway(provider model.Provider) *MockGateway {
	return &MockGateway{provider: provider}
}

func (g *MockGateway) Provider() model.Provider { return g.provider }

func (g *MockGateway) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	g.mu.Lock()
	g.CreateCalls++
	g.mu.Unlock()
	if g.CreatePaymentFunc != nil {
		return g.CreatePaymentFunc(ctx, p)
	}
	return &adapter.PaymentResult{
		Provider:          g.provider,
		ProviderPaymentID: "gw_" + p.PaymentID,
		ProviderOrderID:   "gword_" + p.OrderID,
		Status:            model.PaymentStatusProcessing,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Metadata:          map[string]string{"checkout_url": "https://pay.example/" + p.PaymentID},
	}, nil
}

func (g *MockGateway) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	g.mu.Lock()
	g.VerifyCalls++
	g.mu.Unlock()
	if g.VerifyPaymentFunc != nil {
		return g.VerifyPaymentFunc(ctx, providerPaymentID)
	}
	return &adapter.PaymentResult{
		Provider:          g.provider,
		ProviderPaymentID: providerPaymentID,
		Status:            model.PaymentStatusProcessing,
	}, nil
}

func (g *MockGateway) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	g.mu.Lock()
	g.CaptureCalls++
	g.mu.Unlock()
	if g.CapturePaymentFunc != nil {
		return g.CapturePaymentFunc(ctx, providerPaymentID, amount)
	}
	return &adapter.PaymentResult{
		Provider:          g.provider,
		ProviderPaymentID: providerPaymentID,
		Status:            model.PaymentStatusCaptured,
		Amount:            amount,
	}, nil
}

func (g *MockGateway) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	g.mu.Lock()
	g.RefundCalls++
	g.mu.Unlock()
	if g.CreateRefundFunc != nil {
		return g.CreateRefundFunc(ctx, providerPaymentID, amount, notes)
	}
	return &adapter.RefundResult{
		Provider:         g.provider,
		ProviderRefundID: "gwrf_" + providerPaymentID,
		Status:           model.RefundStatusPending,
		Amount:           amount,
	}, nil
}

func (g *MockGateway) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	g.mu.Lock()
	g.RefundStatusCalls++
	g.mu.Unlock()
	if g.RefundStatusFunc != nil {
		return g.RefundStatusFunc(ctx, providerRefundID)
	}
	return &adapter.RefundResult{
		Provider:         g.provider,
		ProviderRefundID: providerRefundID,
		Status:           model.RefundStatusPending,
	}, nil
}

func (g *MockGateway) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	g.mu.Lock()
	g.VerifyWebhookCalls++
	g.mu.Unlock()
	if g.VerifyWebhookFunc != nil {
		return g.VerifyWebhookFunc(ctx, body, headers)
	}
	return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
}

func (g *MockGateway) HealthCheck(ctx context.Context) adapter.HealthStatus {
	return adapter.HealthStatus{Healthy: true, CheckedAt: time.Now()}
}

func (g *MockGateway) SupportedMethods() []string    { return []string{"card", "upi"} }
func (g *MockGateway) SupportedCurrencies() []string { return []string{"INR"} }
func (g *MockGateway) ValidateConfig() error         { return nil }

func (g *MockGateway) Calls() (create, verify, webhook int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.CreateCalls, g.VerifyCalls, g.VerifyWebhookCalls
}

// ---- Mock Factory ----

type MockFactory struct {
	mu            sync.Mutex
	Gateway       *MockGateway
	ResolveErr    error
	ResolveCalls  int
	FallbackCalls int
	ClearCalls    int

	ResolveFunc func(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (adapter.PaymentGateway, error)
}

var _ adapter.Factory = (*MockFactory)(nil)

func NewMockFactory(gw *MockGateway) *MockFactory {
	return &MockFactory{Gateway: gw}
}

func (f *MockFactory) Resolve(ctx context.Context, tenantID string, provider model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	f.mu.Lock()
	f.ResolveCalls++
	f.mu.Unlock()
	if f.ResolveFunc != nil {
		return f.ResolveFunc(ctx, tenantID, provider, env)
	}
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	return f.Gateway, nil
}

func (f *MockFactory) ResolveWithFallback(ctx context.Context, tenantID string, preferred model.Provider, env model.Environment) (adapter.PaymentGateway, error) {
	f.mu.Lock()
	f.FallbackCalls++
	f.mu.Unlock()
	if f.ResolveFunc != nil {
		return f.ResolveFunc(ctx, tenantID, preferred, env)
	}
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	return f.Gateway, nil
}

func (f *MockFactory) ClearCache() {
	f.mu.Lock()
	f.ClearCalls++
	f.mu.Unlock()
}

// =============================
// Secrets, jobs, dedupe
// =============================

// ---- Mock secrets.Source ----

type MockSecretSource struct {
	mu      sync.Mutex
	values  map[string]string
	Lookups int
}

var _ secrets.Source = (*MockSecretSource)(nil)

func NewMockSecretSource() *MockSecretSource {
	return &MockSecretSource{values: map[string]string{}}
}

func (s *MockSecretSource) Set(provider model.Provider, env model.Environment, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[string(provider)+"|"+string(env)+"|"+key] = value
}

func (s *MockSecretSource) Lookup(provider model.Provider, env model.Environment, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	v, ok := s.values[string(provider)+"|"+string(env)+"|"+key]
	return v, ok
}

// ---- Mock recon.JobRegistry ----

type MockJobRegistry struct {
	mu   sync.Mutex
	Jobs []recon.Job

	RegisterJobFunc func(ctx context.Context, paymentID, orderID string) (*recon.Job, error)
}

var _ recon.JobRegistry = (*MockJobRegistry)(nil)

func NewMockJobRegistry() *MockJobRegistry {
	return &MockJobRegistry{}
}

func (r *MockJobRegistry) RegisterJob(ctx context.Context, paymentID, orderID string) (*recon.Job, error) {
	if r.RegisterJobFunc != nil {
		return r.RegisterJobFunc(ctx, paymentID, orderID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j := recon.Job{ID: paymentID, PaymentID: paymentID, OrderID: orderID, CreatedAt: time.Now()}
	r.Jobs = append(r.Jobs, j)
	return &j, nil
}

func (r *MockJobRegistry) LatestJobForOrder(ctx context.Context, orderID string) (*recon.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Jobs) - 1; i >= 0; i-- {
		if r.Jobs[i].OrderID == orderID {
			j := r.Jobs[i]
			return &j, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Mock WebhookDeduper ----

type MockDeduper struct {
	mu        sync.Mutex
	seen      map[string]bool
	SeenCalls int
	MarkCalls int

	SeenFunc func(ctx context.Context, provider, dedupeKey string) (bool, error)
}

var _ redis.WebhookDeduper = (*MockDeduper)(nil)

func NewMockDeduper() *MockDeduper {
	return &MockDeduper{seen: map[string]bool{}}
}

func (d *MockDeduper) Seen(ctx context.Context, provider, dedupeKey string) (bool, error) {
	d.mu.Lock()
	d.SeenCalls++
	d.mu.Unlock()
	if d.SeenFunc != nil {
		return d.SeenFunc(ctx, provider, dedupeKey)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[provider+"|"+dedupeKey], nil
}

func (d *MockDeduper) Mark(ctx context.Context, provider, dedupeKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.MarkCalls++
	d.seen[provider+"|"+dedupeKey] = true
	return nil
}

func (d *MockDeduper) Marked(provider, dedupeKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[provider+"|"+dedupeKey]
}

// =============================
// Helpers
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newCaptureLogger returns a logger writing JSON lines into the buffer so
// tests can assert on log channels and fields.
func newCaptureLogger() (*zerolog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)
	return &logger, buf
}
