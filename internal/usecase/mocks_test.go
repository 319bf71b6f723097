// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
)

// memPaymentRepo is a small in-memory implementation used by the lifecycle
// unit tests in this package.
type memPaymentRepo struct {
	mu     sync.RWMutex
	store  map[string]*model.Payment
	writes int // landed status writes, for zero-write assertions
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) put(p *model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
}

func (m *memPaymentRepo) get(id string) *model.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.store[id]
	return &cp
}

func (m *memPaymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	m.put(p)
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByProviderPaymentID(ctx context.Context, qx repository.Tx, provider model.Provider, providerPaymentID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) ListByOrder(ctx context.Context, qx repository.Tx, orderID string) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memPaymentRepo) CapturedExistsForOrder(ctx context.Context, qx repository.Tx, orderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.OrderID == orderID && p.Status == model.PaymentStatusCaptured {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPaymentRepo) UpdateStatus(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.mutate(p, status, providerPaymentID, capturedAt)
	return nil
}

func (m *memPaymentRepo) UpdateStatusIfOpen(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status.IsTerminal() {
		return false, nil
	}
	m.mutate(p, status, providerPaymentID, capturedAt)
	return true, nil
}

// mutate mirrors the SQL update: nil pointers keep the stored column.
func (m *memPaymentRepo) mutate(p *model.Payment, status model.PaymentStatus, ppid *string, capturedAt *time.Time) {
	m.writes++
	p.Status = status
	p.UpdatedAt = time.Now()
	if ppid != nil {
		p.ProviderPaymentID = *ppid
	}
	if capturedAt != nil {
		p.CapturedAt = capturedAt
	}
	if (status == model.PaymentStatusFailed || status == model.PaymentStatusCancelled) && p.FailedAt == nil {
		now := time.Now()
		p.FailedAt = &now
	}
}

func (m *memPaymentRepo) ListOpenOlderThan(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
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

func (m *memPaymentRepo) SumCapturedByPeriod(ctx context.Context, qx repository.Tx, period string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, p := range m.store {
		if p.Status == model.PaymentStatusCaptured {
			sum += p.Amount
		}
	}
	return sum, nil
}

// memOrderRepo is the order-side counterpart.
type memOrderRepo struct {
	mu          sync.RWMutex
	store       map[string]*model.Order
	transitions int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{store: make(map[string]*model.Order)}
}

func (m *memOrderRepo) put(o *model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.ID] = &cp
}

func (m *memOrderRepo) get(id string) *model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.store[id]
	return &cp
}

func (m *memOrderRepo) Save(ctx context.Context, qx repository.Tx, o *model.Order) error {
	m.put(o)
	return nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) TransitionState(ctx context.Context, qx repository.Tx, id string, from, to model.OrderState, paymentID *string, failedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.State != from {
		return false, nil
	}
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
	m.transitions++
	return true, nil
}

// memTxManager runs the function inline without a database.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}
