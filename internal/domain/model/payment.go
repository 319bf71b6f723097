package model

import (
	"time"

	"github.com/google/uuid"

	"paybridge/internal/domain"
)

// Payment records one attempt to collect money for an order through a
// provider. A single order may accumulate several payments (retries across
// providers); at most one of them may ever reach captured.
type Payment struct {
	ID       string // UUID
	OrderID  string // UUID of the merchant order this pays for
	TenantID string
	Provider Provider
	Env      Environment

	Amount   int64  // minor units (paise for INR), never floats
	Currency string // ISO 4217
	Method   string // card | upi | netbanking | wallet | emi

	// Provider-side identifiers. ProviderPaymentID is their primary handle;
	// ProviderOrderID is set by providers with a separate order object.
	ProviderPaymentID string
	ProviderOrderID   string

	Status    PaymentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	// CapturedAt / FailedAt are set exactly once, by the transition that
	// lands the payment in that state.
	CapturedAt *time.Time
	FailedAt   *time.Time

	Description string
	// Meta carries provider extras surfaced to callers: upi_intent_url,
	// qr_data, payer_vpa, masked_utr, expires_at. Serialized as JSONB.
	Meta map[string]string
}

// Order is the merchant-side aggregate a payment settles. Its State follows
// the internal lifecycle table in status.go, driven only by verified events.
type Order struct {
	ID        string // UUID
	TenantID  string
	Amount    int64
	Currency  string
	State     OrderState
	PaymentID *string // winning payment once completed
	CreatedAt time.Time
	UpdatedAt time.Time
	// FailedAt is stamped when the order enters FAILED.
	FailedAt *time.Time
	Meta     map[string]string
}

// NewOrder returns an order in the initial lifecycle state.
func NewOrder(id, tenantID string, amount int64, currency string) (*Order, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tenantID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Order{
		ID:        id,
		TenantID:  tenantID,
		Amount:    amount,
		Currency:  currency,
		State:     OrderStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewPayment returns a payment attempt in the initial status for an order.
func NewPayment(id string, order *Order, provider Provider, env Environment, method string) (*Payment, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if order == nil || order.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, ok := Capabilities(provider); !ok {
		return nil, domain.ErrProviderUnknown
	}
	now := time.Now()
	return &Payment{
		ID:        id,
		OrderID:   order.ID,
		TenantID:  order.TenantID,
		Provider:  provider,
		Env:       env,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Method:    method,
		Status:    PaymentStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
