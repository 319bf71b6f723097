package adapter

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
)

// CreatePaymentParams carries everything an adapter needs to open a payment
// with its provider. Amounts are minor units throughout.
type CreatePaymentParams struct {
	PaymentID   string // our UUID, sent as provider receipt/reference
	OrderID     string
	Amount      int64
	Currency    string
	Method      string // card | upi | netbanking | wallet | emi
	CustomerID  string
	Email       string
	Phone       string
	VPA         string // payer UPI handle for collect flows
	CallbackURL string
	Description string
	Notes       map[string]string
}

// PaymentResult is the provider-agnostic outcome of create/verify/capture.
// Status is already normalized to the canonical vocabulary.
type PaymentResult struct {
	Provider          model.Provider
	ProviderPaymentID string
	ProviderOrderID   string
	Status            model.PaymentStatus
	Amount            int64
	Currency          string
	// Metadata surfaces provider extras without widening this struct:
	// upi_intent_url, qr_data, payer_vpa, masked_utr, expires_at,
	// checkout_url, auth_code.
	Metadata map[string]string
}

// RefundResult mirrors PaymentResult for refund operations.
type RefundResult struct {
	Provider         model.Provider
	ProviderRefundID string
	Status           model.RefundStatus
	Amount           int64
	Currency         string
	ProcessedAt      *time.Time
	Metadata         map[string]string
}

// Rejection reasons for WebhookVerification. The router picks the response
// status and log channel from these, so adapters must not invent new ones.
const (
	ReasonSignatureInvalid     = "signature_invalid"
	ReasonAuthorizationInvalid = "authorization_invalid"
	ReasonMissingSignature     = "missing_signature"
	ReasonMalformedPayload     = "malformed_payload"
)

// WebhookVerification is always a value, never a panic: failed verification
// comes back as Verified=false with a bounded Reason.
type WebhookVerification struct {
	Verified bool
	// Reason is one of the Reason* constants when Verified is false.
	Reason string
	Event  *model.WebhookEvent
	Err    error
}

// HealthStatus reports provider reachability for routing decisions.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	Detail    string
	CheckedAt time.Time
}

// PaymentGateway is the hex port every payment provider adapter implements.
// Implementations return *domain.PaymentError for provider failures and keep
// all raw status vocabulary internal.
type PaymentGateway interface {
	Provider() model.Provider

	// CreatePayment opens a payment with the provider and returns the
	// normalized result, including checkout material in Metadata.
	CreatePayment(ctx context.Context, p CreatePaymentParams) (*PaymentResult, error)
	// VerifyPayment re-queries the provider for the current state of a
	// payment. Read-only on the provider side.
	VerifyPayment(ctx context.Context, providerPaymentID string) (*PaymentResult, error)
	// CapturePayment captures an authorized amount. Providers that settle
	// automatically reject this with CAPTURE_NOT_SUPPORTED.
	CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*PaymentResult, error)

	// CreateRefund issues a full or partial refund against a captured
	// payment.
	CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*RefundResult, error)
	RefundStatus(ctx context.Context, providerRefundID string) (*RefundResult, error)

	// VerifyWebhook authenticates a raw webhook delivery. Signature
	// comparison is constant-time. The result is a value in all cases;
	// implementations must not panic on adversarial payloads.
	VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) WebhookVerification

	HealthCheck(ctx context.Context) HealthStatus
	SupportedMethods() []string
	SupportedCurrencies() []string
	// ValidateConfig checks the resolved configuration for completeness,
	// reporting every missing key at once.
	ValidateConfig() error
}
