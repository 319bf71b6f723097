package repository

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Payment, error)
	// FindByProviderPaymentID locates a payment by the provider-side handle.
	// Inside a transaction the read takes a row lock.
	FindByProviderPaymentID(ctx context.Context, qx Tx, provider model.Provider, providerPaymentID string) (*model.Payment, error)
	ListByOrder(ctx context.Context, qx Tx, orderID string) ([]*model.Payment, error)
	// CapturedExistsForOrder reports whether any payment for the order has
	// already reached captured.
	CapturedExistsForOrder(ctx context.Context, qx Tx, orderID string) (bool, error)
	UpdateStatus(ctx context.Context, qx Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time) error
	// UpdateStatusIfOpen applies the status only while the payment is still
	// non-terminal; returns false with no write otherwise.
	UpdateStatusIfOpen(ctx context.Context, qx Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time) (bool, error)
	// ListOpenOlderThan feeds the reconciler with stale in-flight payments.
	ListOpenOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	SumCapturedByPeriod(ctx context.Context, qx Tx, period string) (int64, error)
}

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	Save(ctx context.Context, qx Tx, o *model.Order) error
	// FindByID takes a row lock when called inside a transaction.
	FindByID(ctx context.Context, qx Tx, id string) (*model.Order, error)
	// TransitionState applies from -> to atomically, guarded by the current
	// state; returns false with no write when the order moved meanwhile.
	TransitionState(ctx context.Context, qx Tx, id string, from, to model.OrderState, paymentID *string, failedAt *time.Time) (bool, error)
}
