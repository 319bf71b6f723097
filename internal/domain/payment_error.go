package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Stable machine codes returned to callers. Adapters map raw provider codes
// onto these; callers must never need to parse provider-specific strings.
const (
	CodeDuplicateCapture       = "UPI_PAYMENT_ALREADY_CAPTURED"
	CodeCaptureNotSupported    = "CAPTURE_NOT_SUPPORTED"
	CodeRefundNotSupported     = "REFUND_NOT_SUPPORTED"
	CodeGatewayTimeout         = "GATEWAY_TIMEOUT"
	CodeGatewayError           = "GATEWAY_ERROR"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeTokenEndpointFailed    = "TOKEN_ENDPOINT_UNAVAILABLE"
	CodeSignatureInvalid       = "SIGNATURE_INVALID"
	CodeAdapterUnavailable     = "ADAPTER_UNAVAILABLE"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodeRefundNotFound         = "REFUND_NOT_FOUND"
	CodeAmountExceedsPayment   = "AMOUNT_EXCEEDS_PAYMENT"
	CodePaymentNotCaptured     = "PAYMENT_NOT_CAPTURED"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeProviderNotConfigured  = "PROVIDER_NOT_CONFIGURED"
	CodeIdempotencyInProgress  = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdempotencyKeyConflict = "IDEMPOTENCY_KEY_CONFLICT"
)

// PaymentError is the typed failure adapters and services return for gateway
// operations. Code is stable; Message may carry provider detail for logs.
type PaymentError struct {
	Code     string
	Provider string
	Message  string
	Err      error
}

func (e *PaymentError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func NewPaymentError(code, provider, message string, cause error) *PaymentError {
	return &PaymentError{Code: code, Provider: provider, Message: message, Err: cause}
}

// IsPaymentCode reports whether err carries the given stable code.
func IsPaymentCode(err error, code string) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// ConfigurationError reports everything wrong with a provider configuration in
// one shot so operators fix a deployment once, not key by key.
type ConfigurationError struct {
	Provider    string
	Environment string
	Tenant      string
	MissingKeys []string
	Conflicts   []string
	Reason      string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "configuration invalid for %s/%s", e.Provider, e.Environment)
	if e.Tenant != "" {
		fmt.Fprintf(&b, " tenant=%s", e.Tenant)
	}
	if len(e.MissingKeys) > 0 {
		fmt.Fprintf(&b, ": missing keys [%s]", strings.Join(e.MissingKeys, ", "))
	}
	if len(e.Conflicts) > 0 {
		fmt.Fprintf(&b, ": conflicting keys [%s]", strings.Join(e.Conflicts, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// WebhookError describes a webhook that was received but could not be acted
// on. It is a result value, not a panic path; handlers map Reason to an HTTP
// status.
type WebhookError struct {
	Reason  string // signature_invalid | authorization_invalid | malformed_payload | unknown_tenant
	Message string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook rejected (%s): %s", e.Reason, e.Message)
}
