package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const noopDefaultSecret = "noop-secret"

// NoopAdapter is a loopback gateway for local development and tests. It
// keeps payments in memory, succeeds deterministically and signs webhooks
// with the same HMAC scheme real providers use.
type NoopAdapter struct {
	cfg    *model.ResolvedConfig
	secret string
	log    *zerolog.Logger

	mu       sync.Mutex
	payments map[string]int64
	captured map[string]bool
}

var _ adapter.PaymentGateway = (*NoopAdapter)(nil)

func NewNoopAdapter(cfg *model.ResolvedConfig, logger *zerolog.Logger) *NoopAdapter {
	secret := noopDefaultSecret
	if v, ok := cfg.Field("webhook_secret"); ok && v != "" {
		secret = v
	}
	return &NoopAdapter{
		cfg:      cfg,
		secret:   secret,
		log:      logger,
		payments: map[string]int64{},
		captured: map[string]bool{},
	}
}

func (a *NoopAdapter) Provider() model.Provider { return model.ProviderNoop }

func (a *NoopAdapter) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	id := "noop_" + p.PaymentID
	a.mu.Lock()
	a.payments[id] = p.Amount
	a.mu.Unlock()

	return &adapter.PaymentResult{
		Provider:          model.ProviderNoop,
		ProviderPaymentID: id,
		Status:            model.PaymentStatusInitiated,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Metadata:          map[string]string{"checkout_url": "noop://pay/" + id},
	}, nil
}

func (a *NoopAdapter) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	a.mu.Lock()
	amount, ok := a.payments[providerPaymentID]
	captured := a.captured[providerPaymentID]
	a.mu.Unlock()
	if !ok {
		return nil, domain.NewPaymentError(domain.CodePaymentNotFound, "noop",
			"unknown payment "+providerPaymentID, nil)
	}

	status := model.PaymentStatusAuthorized
	if captured {
		status = model.PaymentStatusCaptured
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderNoop,
		ProviderPaymentID: providerPaymentID,
		Status:            status,
		Amount:            amount,
		Currency:          "INR",
		Metadata:          map[string]string{},
	}, nil
}

func (a *NoopAdapter) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.payments[providerPaymentID]
	if !ok {
		return nil, domain.NewPaymentError(domain.CodePaymentNotFound, "noop",
			"unknown payment "+providerPaymentID, nil)
	}
	if a.captured[providerPaymentID] {
		return nil, domain.NewPaymentError(domain.CodeDuplicateCapture, "noop",
			"payment already captured", nil)
	}
	if amount > stored {
		return nil, domain.NewPaymentError(domain.CodeAmountExceedsPayment, "noop",
			"capture amount exceeds payment", nil)
	}
	a.captured[providerPaymentID] = true

	return &adapter.PaymentResult{
		Provider:          model.ProviderNoop,
		ProviderPaymentID: providerPaymentID,
		Status:            model.PaymentStatusCaptured,
		Amount:            amount,
		Currency:          "INR",
		Metadata:          map[string]string{},
	}, nil
}

func (a *NoopAdapter) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	a.mu.Lock()
	stored, ok := a.payments[providerPaymentID]
	a.mu.Unlock()
	if !ok {
		return nil, domain.NewPaymentError(domain.CodePaymentNotFound, "noop",
			"unknown payment "+providerPaymentID, nil)
	}
	if amount > stored {
		return nil, domain.NewPaymentError(domain.CodeAmountExceedsPayment, "noop",
			"refund amount exceeds payment", nil)
	}

	at := time.Now()
	return &adapter.RefundResult{
		Provider:         model.ProviderNoop,
		ProviderRefundID: "nooprf_" + uuid.NewString(),
		Status:           model.RefundStatusCompleted,
		Amount:           amount,
		Currency:         "INR",
		ProcessedAt:      &at,
		Metadata:         map[string]string{},
	}, nil
}

func (a *NoopAdapter) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	at := time.Now()
	return &adapter.RefundResult{
		Provider:         model.ProviderNoop,
		ProviderRefundID: providerRefundID,
		Status:           model.RefundStatusCompleted,
		Currency:         "INR",
		ProcessedAt:      &at,
	}, nil
}

func (a *NoopAdapter) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	sig := headerValue(headers, "X-Noop-Signature")
	if sig == "" {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
	}
	if !equalHexDigest(hmacSHA256Hex(a.secret, body), sig) {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonSignatureInvalid}
	}

	var payload struct {
		Event             string `json:"event"`
		ProviderPaymentID string `json:"provider_payment_id"`
		OrderID           string `json:"order_id"`
		Status            string `json:"status"`
		Amount            int64  `json:"amount"`
		Currency          string `json:"currency"`
		DedupeKey         string `json:"dedupe_key"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMalformedPayload, Err: err}
	}

	dedupe := payload.DedupeKey
	if dedupe == "" {
		dedupe = bodyDigest(body)
	}
	return adapter.WebhookVerification{Verified: true, Event: &model.WebhookEvent{
		Provider:          model.ProviderNoop,
		EventType:         payload.Event,
		DedupeKey:         dedupe,
		ProviderPaymentID: payload.ProviderPaymentID,
		OrderID:           payload.OrderID,
		Status:            model.NormalizeStatus(payload.Status),
		Amount:            payload.Amount,
		Currency:          orDefault(payload.Currency, "INR"),
		OccurredAt:        time.Now(),
		Raw:               map[string]string{},
	}}
}

func (a *NoopAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	return adapter.HealthStatus{Healthy: true, CheckedAt: time.Now()}
}

func (a *NoopAdapter) SupportedMethods() []string {
	cs, _ := model.Capabilities(model.ProviderNoop)
	return cs.Methods()
}

func (a *NoopAdapter) SupportedCurrencies() []string {
	cs, _ := model.Capabilities(model.ProviderNoop)
	return cs.Currencies
}

func (a *NoopAdapter) ValidateConfig() error { return nil }
