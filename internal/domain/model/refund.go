package model

import "time"

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

var refundAliases = map[string]RefundStatus{
	"pending":    RefundStatusPending,
	"created":    RefundStatusPending,
	"initiated":  RefundStatusPending,
	"queued":     RefundStatusPending,
	"processing": RefundStatusProcessing,
	"confirmed":  RefundStatusProcessing,
	"processed":  RefundStatusCompleted,
	"completed":  RefundStatusCompleted,
	"success":    RefundStatusCompleted,
	"successful": RefundStatusCompleted,
	"refunded":   RefundStatusCompleted,
	"failed":     RefundStatusFailed,
	"failure":    RefundStatusFailed,
	"rejected":   RefundStatusFailed,
	"cancelled":  RefundStatusCancelled,
	"canceled":   RefundStatusCancelled,
	"voided":     RefundStatusCancelled,
}

// NormalizeRefundStatus folds raw provider refund states onto the canonical
// set; unknowns stay processing, same policy as payment statuses.
func NormalizeRefundStatus(raw string) RefundStatus {
	if s, ok := refundAliases[normKey(raw)]; ok {
		return s
	}
	return RefundStatusProcessing
}

func (s RefundStatus) IsTerminal() bool {
	switch s {
	case RefundStatusCompleted, RefundStatusFailed, RefundStatusCancelled:
		return true
	}
	return false
}

// Refund tracks returning captured money, fully or partially.
type Refund struct {
	ID        string // UUID
	PaymentID string
	TenantID  string
	Provider  Provider
	Env       Environment

	Amount   int64 // minor units; <= captured amount minus prior refunds
	Currency string

	ProviderRefundID string
	Status           RefundStatus
	Reason           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	Meta             map[string]string
}
