package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/infra/gateway"
	"paybridge/internal/infra/metrics"
	red "paybridge/internal/infra/redis"
	"paybridge/internal/usecase"
)

// handleWebhook accepts one provider delivery. The body is passed through
// untouched so adapters can verify signatures over the exact bytes; the
// response vocabulary is fixed so providers retry on their own schedule:
// 200 processed/already_processed, 400 malformed, 401 signature, 403
// authorization, 404 for anything that must not reveal what exists.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	provider, ok := model.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		// Fixed label; arbitrary path segments must not become label values.
		s.finishWebhook(w, "unknown", "unknown_provider", start, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "unknown provider"})
		return
	}

	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		s.finishWebhook(w, string(provider), "unknown_tenant", start, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "unknown tenant"})
		return
	}

	if s.limiter != nil && s.webhookRPM > 0 {
		allowed, err := s.limiter.Allow(r.Context(), red.WebhookSourceKey(string(provider), tenantID), s.webhookRPM, time.Minute)
		if err != nil {
			// A limiter outage must not drop deliveries.
			s.log.Warn().Err(err).Str("provider", string(provider)).Msg("webhook rate limit check failed")
		} else if !allowed {
			// 429 before the body is read; providers back off and redeliver.
			s.finishWebhook(w, string(provider), "rate_limited", start, http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Message: "delivery rate exceeded"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.finishWebhook(w, string(provider), "oversized", start, http.StatusRequestEntityTooLarge, errorBody{Code: "PAYLOAD_TOO_LARGE", Message: "webhook body exceeds limit"})
		return
	}

	headers := flattenHeaders(r.Header)
	out, err := s.webhooks.Process(r.Context(), usecase.WebhookInput{
		TenantID:   tenantID,
		Provider:   provider,
		Env:        s.requestEnv(r),
		Body:       body,
		Headers:    headers,
		DedupeHint: gateway.DedupeKeyHint(provider, body, headers),
	})
	if err != nil {
		s.writeWebhookError(w, provider, start, err)
		return
	}

	status, payload := webhookResponse(out)
	s.finishWebhook(w, string(provider), out.Status, start, status, payload)
}

// webhookResponse maps a router outcome onto the wire contract.
func webhookResponse(out *usecase.WebhookOutcome) (int, any) {
	type ack struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	}
	switch out.Status {
	case usecase.WebhookProcessed, usecase.WebhookAlreadyProcessed:
		return http.StatusOK, ack{Status: out.Status}
	case usecase.WebhookAuthInvalid:
		return http.StatusForbidden, ack{Status: out.Status, Message: "authorization rejected"}
	case usecase.WebhookMalformed:
		return http.StatusBadRequest, ack{Status: out.Status}
	default:
		// signature_invalid, including a missing signature
		return http.StatusUnauthorized, ack{Status: usecase.WebhookSignatureInvalid}
	}
}

func (s *Server) writeWebhookError(w http.ResponseWriter, provider model.Provider, start time.Time, err error) {
	var ce *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrProviderUnknown),
		errors.Is(err, domain.ErrTenantUnknown),
		errors.Is(err, domain.ErrProviderDisabled):
		// One answer for all three; the caller learns nothing about which
		// part exists.
		s.finishWebhook(w, string(provider), "unknown", start, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "unknown provider or tenant"})
	case errors.As(err, &ce):
		s.log.Error().Err(err).Str("provider", string(provider)).Msg("webhook hit an invalid provider configuration")
		s.finishWebhook(w, string(provider), "config_error", start, http.StatusInternalServerError, errorBody{Code: "CONFIGURATION_ERROR", Message: "provider configuration invalid"})
	default:
		s.log.Error().Err(err).Str("provider", string(provider)).Msg("webhook processing failed")
		s.finishWebhook(w, string(provider), "error", start, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
	}
}

// finishWebhook writes the response and lands both webhook metrics with the
// final result label.
func (s *Server) finishWebhook(w http.ResponseWriter, provider, result string, start time.Time, status int, payload any) {
	metrics.IncWebhook(provider, result)
	metrics.ObserveWebhook(provider, result, time.Since(start).Seconds())
	writeJSON(w, status, payload)
}

// flattenHeaders keeps the first value per header, which is all any provider
// signature scheme reads.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
