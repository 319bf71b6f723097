package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/usecase"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeDomainError maps use case failures onto HTTP statuses, surfacing the
// stable machine code in the body. Provider detail stays in the logs.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		writeError(w, statusForCode(pe.Code), pe.Code, pe.Message)
		return
	}
	var ce *domain.ConfigurationError
	switch {
	case errors.As(err, &ce):
		s.log.Error().Err(err).Msg("request hit an invalid provider configuration")
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "provider configuration invalid")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid request")
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrTenantUnknown),
		errors.Is(err, domain.ErrProviderUnknown),
		errors.Is(err, domain.ErrProviderDisabled):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func statusForCode(code string) int {
	switch code {
	case domain.CodeInvalidRequest, domain.CodeAmountExceedsPayment:
		return http.StatusBadRequest
	case domain.CodePaymentNotFound, domain.CodeRefundNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicateCapture, domain.CodePaymentNotCaptured,
		domain.CodeIdempotencyKeyConflict, domain.CodeIdempotencyInProgress:
		return http.StatusConflict
	case domain.CodeCaptureNotSupported, domain.CodeRefundNotSupported:
		return http.StatusUnprocessableEntity
	case domain.CodeProviderNotConfigured:
		return http.StatusServiceUnavailable
	case domain.CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeGatewayError, domain.CodeAdapterUnavailable,
		domain.CodeTokenExpired, domain.CodeTokenEndpointFailed,
		domain.CodeSignatureInvalid:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type createPaymentRequest struct {
	OrderID     string            `json:"order_id"`
	Provider    string            `json:"provider"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Method      string            `json:"method"`
	CustomerID  string            `json:"customer_id"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	VPA         string            `json:"vpa"`
	CallbackURL string            `json:"callback_url"`
	Description string            `json:"description"`
	Notes       map[string]string `json:"notes"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid request body")
		return
	}
	provider, ok := model.ParseProvider(req.Provider)
	if !ok {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "unknown provider")
		return
	}

	res, err := s.payments.Create(r.Context(), usecase.CreateParams{
		TenantID:       tenantFrom(r.Context()),
		OrderID:        req.OrderID,
		Provider:       provider,
		Env:            s.requestEnv(r),
		Amount:         req.Amount,
		Currency:       req.Currency,
		Method:         req.Method,
		CustomerID:     req.CustomerID,
		Email:          req.Email,
		Phone:          req.Phone,
		VPA:            req.VPA,
		CallbackURL:    req.CallbackURL,
		Description:    req.Description,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	// A replayed result answers 200; only the run that reached the gateway
	// answers 201.
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, changed, err := s.payments.Verify(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Payment *model.Payment `json:"payment"`
		Changed bool           `json:"changed"`
	}{Payment: p, Changed: changed})
}

func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid request body")
			return
		}
	}
	p, err := s.payments.Capture(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64             `json:"amount"`
		Reason string            `json:"reason"`
		Notes  map[string]string `json:"notes"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid request body")
			return
		}
	}
	ref, err := s.payments.CreateRefund(r.Context(), usecase.RefundParams{
		TenantID:  tenantFrom(r.Context()),
		PaymentID: chi.URLParam(r, "id"),
		Amount:    req.Amount,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleRefundStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := s.payments.RefundStatus(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

type providerInfo struct {
	Provider      string   `json:"provider"`
	Methods       []string `json:"methods"`
	Currencies    []string `json:"currencies"`
	Refunds       bool     `json:"refunds"`
	PartialRefund bool     `json:"partial_refund"`
	AutoCapture   bool     `json:"auto_capture"`
	International bool     `json:"international"`
}

// handleListProviders reports the tenant's working providers with their
// registry capabilities, in fallback priority order.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.configs.EnabledProviders(r.Context(), tenantFrom(r.Context()), s.requestEnv(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	data := make([]providerInfo, 0, len(resolved))
	for _, rc := range resolved {
		cs, ok := model.Capabilities(rc.Provider)
		if !ok {
			continue
		}
		data = append(data, providerInfo{
			Provider:      string(rc.Provider),
			Methods:       cs.Methods(),
			Currencies:    cs.Currencies,
			Refunds:       cs.Refunds,
			PartialRefund: cs.PartialRefund,
			AutoCapture:   cs.AutoCapture,
			International: cs.International,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []providerInfo `json:"data"`
	}{Data: data})
}
