package model

import "strings"

// PaymentStatus is the canonical status vocabulary. Every adapter maps its
// provider's raw strings onto this set before anything else sees them.
type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "created"
	PaymentStatusInitiated         PaymentStatus = "initiated"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusAuthorized        PaymentStatus = "authorized"
	PaymentStatusCaptured          PaymentStatus = "captured"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// statusAliases folds provider vocabulary onto canonical statuses. Keys are
// lower-cased, trimmed raw strings.
var statusAliases = map[string]PaymentStatus{
	"created":   PaymentStatusCreated,
	"new":       PaymentStatusCreated,
	"initiated": PaymentStatusInitiated,
	"init":      PaymentStatusInitiated,
	"active":    PaymentStatusInitiated,

	"processing":  PaymentStatusProcessing,
	"pending":     PaymentStatusProcessing,
	"in_progress": PaymentStatusProcessing,

	"authorized":    PaymentStatusAuthorized,
	"authorised":    PaymentStatusAuthorized,
	"authorization": PaymentStatusAuthorized,

	"captured":    PaymentStatusCaptured,
	"success":     PaymentStatusCaptured,
	"successful":  PaymentStatusCaptured,
	"paid":        PaymentStatusCaptured,
	"completed":   PaymentStatusCaptured,
	"charged":     PaymentStatusCaptured,
	"txn_success": PaymentStatusCaptured,

	"failed":      PaymentStatusFailed,
	"failure":     PaymentStatusFailed,
	"declined":    PaymentStatusFailed,
	"rejected":    PaymentStatusFailed,
	"error":       PaymentStatusFailed,
	"txn_failure": PaymentStatusFailed,

	"cancelled":      PaymentStatusCancelled,
	"canceled":       PaymentStatusCancelled,
	"timedout":       PaymentStatusCancelled,
	"timed_out":      PaymentStatusCancelled,
	"expired":        PaymentStatusCancelled,
	"aborted":        PaymentStatusCancelled,
	"user_cancelled": PaymentStatusCancelled,
	"user_dropped":   PaymentStatusCancelled,
	"voided":         PaymentStatusCancelled,
	"void":           PaymentStatusCancelled,

	"refunded":           PaymentStatusRefunded,
	"refund":             PaymentStatusRefunded,
	"partially_refunded": PaymentStatusPartiallyRefunded,
	"partial_refund":     PaymentStatusPartiallyRefunded,
}

func normKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizeStatus maps a raw provider status to the canonical vocabulary,
// case and whitespace insensitive. Unknown strings normalize to processing:
// an indeterminate report must never look terminal.
func NormalizeStatus(raw string) PaymentStatus {
	if s, ok := statusAliases[normKey(raw)]; ok {
		return s
	}
	return PaymentStatusProcessing
}

// IsTerminal reports whether s admits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCaptured, PaymentStatusFailed, PaymentStatusCancelled,
		PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

// paymentProgress orders the open statuses; reports never move a payment
// backward along it.
var paymentProgress = map[PaymentStatus]int{
	PaymentStatusCreated:    0,
	PaymentStatusInitiated:  1,
	PaymentStatusProcessing: 2,
	PaymentStatusAuthorized: 3,
}

// CanAdvancePayment reports whether a gateway-reported status may replace the
// current one. Terminal states absorb everything, same-state replays are
// no-ops, and open states only move forward.
func CanAdvancePayment(from, to PaymentStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if to.IsTerminal() {
		return true
	}
	return paymentProgress[to] > paymentProgress[from]
}

// OrderState is the internal lifecycle of an order, separate from the
// provider-facing payment status above.
type OrderState string

const (
	OrderStateCreated   OrderState = "CREATED"
	OrderStatePending   OrderState = "PENDING"
	OrderStateCompleted OrderState = "COMPLETED"
	OrderStateFailed    OrderState = "FAILED"
)

// orderTransitions is the allowed transition table. Absent keys allow nothing.
var orderTransitions = map[OrderState][]OrderState{
	OrderStateCreated: {OrderStatePending, OrderStateCompleted, OrderStateFailed},
	OrderStatePending: {OrderStateCompleted, OrderStateFailed},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
// Terminal states accept nothing, including re-entry into themselves.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStateForPayment folds a canonical payment status into the order
// lifecycle bucket a webhook for that status should drive the order toward.
func OrderStateForPayment(s PaymentStatus) OrderState {
	switch s {
	case PaymentStatusCaptured, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return OrderStateCompleted
	case PaymentStatusFailed, PaymentStatusCancelled:
		return OrderStateFailed
	default:
		return OrderStatePending
	}
}
