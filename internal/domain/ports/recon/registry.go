package recon

import (
	"context"
	"time"
)

// Job is one scheduled re-verification of an in-flight payment.
type Job struct {
	ID        string
	PaymentID string
	OrderID   string
	CreatedAt time.Time
}

// JobRegistry is the pluggable hook for scheduling payment re-verification.
// The payments service registers a job whenever it creates a payment that
// settles asynchronously (UPI intent, collect); the default implementation is
// a fixed-interval poller, but deployments can substitute their own queue.
type JobRegistry interface {
	RegisterJob(ctx context.Context, paymentID, orderID string) (*Job, error)
	LatestJobForOrder(ctx context.Context, orderID string) (*Job, error)
}
