package repository

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
)

type RefundRepository interface {
	Save(ctx context.Context, qx Tx, r *model.Refund) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Refund, error)
	FindByProviderRefundID(ctx context.Context, qx Tx, provider model.Provider, providerRefundID string) (*model.Refund, error)
	ListByPayment(ctx context.Context, qx Tx, paymentID string) ([]*model.Refund, error)
	// SumReservedByPayment totals refunds that are completed or still in
	// flight, used to bound how much of the payment can still be refunded.
	SumReservedByPayment(ctx context.Context, qx Tx, paymentID string) (int64, error)
	// SumCompletedByPayment totals only refunds the provider has settled,
	// used to decide refunded versus partially_refunded.
	SumCompletedByPayment(ctx context.Context, qx Tx, paymentID string) (int64, error)
	UpdateStatus(ctx context.Context, qx Tx, id string, status model.RefundStatus, providerRefundID *string, completedAt *time.Time) error
}
