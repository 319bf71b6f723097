package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const (
	phonepeTestBase = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	phonepeLiveBase = "https://api.phonepe.com/apis/pg"
)

// PhonePeAdapter speaks the PhonePe v2 checkout API. Calls authenticate with
// an O-Bearer token from the OAuth endpoint, cached and refreshed by a
// TokenManager; a rejected token triggers exactly one forced refresh and
// retry. Orders are keyed by merchantOrderId, which is our payment ID.
type PhonePeAdapter struct {
	cfg           *model.ResolvedConfig
	clientID      string
	clientSecret  string
	clientVersion string
	webhookUser   string
	webhookPass   string
	client        *Client
	tokens        *TokenManager
	log           *zerolog.Logger
}

var _ adapter.PaymentGateway = (*PhonePeAdapter)(nil)

func NewPhonePeAdapter(cfg *model.ResolvedConfig, timeout time.Duration, logger *zerolog.Logger) (*PhonePeAdapter, error) {
	a := &PhonePeAdapter{cfg: cfg, log: logger}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	a.clientID, _ = cfg.Field("client_id")
	a.clientSecret, _ = cfg.Field("client_secret")
	a.clientVersion, _ = cfg.Field("client_version")
	a.webhookUser, _ = cfg.Field("webhook_username")
	a.webhookPass, _ = cfg.Field("webhook_password")

	baseURL := phonepeTestBase
	if cfg.Env == model.EnvLive {
		baseURL = phonepeLiveBase
	}
	if ep, ok := cfg.Field("endpoint"); ok && ep != "" {
		baseURL = ep
	}
	a.client = NewClient(model.ProviderPhonePe, baseURL, timeout, logger)
	a.tokens = NewTokenManager(model.ProviderPhonePe, cfg.Env, a.fetchToken, 0, logger)
	return a, nil
}

func (a *PhonePeAdapter) Provider() model.Provider { return model.ProviderPhonePe }

func (a *PhonePeAdapter) fetchToken(ctx context.Context) (Token, error) {
	form := map[string]string{
		"grant_type":     "client_credentials",
		"client_id":      a.clientID,
		"client_secret":  a.clientSecret,
		"client_version": a.clientVersion,
	}
	req := a.client.Request(ctx).SetFormData(form)
	resp, err := a.client.Do(req, http.MethodPost, "/v1/oauth/token", "token")
	if err != nil {
		return Token{}, err
	}
	if resp.IsError() {
		return Token{}, domain.NewPaymentError(domain.CodeTokenEndpointFailed, "phonepe",
			fmt.Sprintf("token endpoint rejected (http %d)", resp.StatusCode()), nil)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresAt   int64  `json:"expires_at"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Token{}, domain.NewPaymentError(domain.CodeTokenEndpointFailed, "phonepe",
			"unparseable token response", err)
	}
	if out.AccessToken == "" {
		return Token{}, domain.NewPaymentError(domain.CodeTokenEndpointFailed, "phonepe",
			"token response missing access_token", nil)
	}

	expiresAt := out.ExpiresAt
	if expiresAt > 0 && expiresAt < 1_000_000_000_000 {
		// expires_at arrives as epoch seconds; tokenExpiry wants millis.
		expiresAt *= 1000
	}
	return Token{Value: out.AccessToken, ExpiresAt: tokenExpiry(expiresAt, out.ExpiresIn)}, nil
}

// do runs an authenticated call with one forced-refresh retry on 401/403.
func (a *PhonePeAdapter) do(ctx context.Context, method, path, op string, body interface{}) (*resty.Response, error) {
	return AuthRetry(ctx, a.tokens, nil, func(token string) (*resty.Response, error) {
		req := a.client.Request(ctx).SetHeader("Authorization", "O-Bearer "+token)
		if body != nil {
			req.SetBody(body)
		}
		return a.client.Do(req, method, path, op)
	})
}

type phonepeAttempt struct {
	TransactionID string `json:"transactionId"`
	PaymentMode   string `json:"paymentMode"`
	State         string `json:"state"`
	ErrorCode     string `json:"errorCode"`
	Timestamp     int64  `json:"timestamp"`
}

type phonepeOrderStatus struct {
	OrderID        string           `json:"orderId"`
	State          string           `json:"state"`
	Amount         int64            `json:"amount"`
	PaymentDetails []phonepeAttempt `json:"paymentDetails"`
}

func (a *PhonePeAdapter) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	body := map[string]interface{}{
		"merchantOrderId": p.PaymentID,
		"amount":          p.Amount,
		"metaInfo":        map[string]string{"udf1": p.OrderID},
		"paymentFlow": map[string]interface{}{
			"type":         "PG_CHECKOUT",
			"message":      p.Description,
			"merchantUrls": map[string]string{"redirectUrl": p.CallbackURL},
		},
	}
	resp, err := a.do(ctx, http.MethodPost, "/checkout/v2/pay", "create_payment", body)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create payment", resp, domain.CodeInvalidRequest)
	}

	var out struct {
		OrderID     string `json:"orderId"`
		State       string `json:"state"`
		RedirectURL string `json:"redirectUrl"`
		ExpireAt    int64  `json:"expireAt"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "phonepe", "unparseable pay response", err)
	}

	meta := map[string]string{"phonepe_order_id": out.OrderID}
	if out.RedirectURL != "" {
		meta["checkout_url"] = out.RedirectURL
	}
	if out.ExpireAt > 0 {
		meta["expires_at"] = time.UnixMilli(out.ExpireAt).Format(time.RFC3339)
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderPhonePe,
		ProviderPaymentID: p.PaymentID,
		ProviderOrderID:   out.OrderID,
		Status:            model.NormalizeStatus(out.State),
		Amount:            p.Amount,
		Currency:          p.Currency,
		Metadata:          meta,
	}, nil
}

func (a *PhonePeAdapter) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	resp, err := a.do(ctx, http.MethodGet, "/checkout/v2/order/"+providerPaymentID+"/status", "verify_payment", nil)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("verify payment", resp, domain.CodePaymentNotFound)
	}

	var out phonepeOrderStatus
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "phonepe", "unparseable status response", err)
	}

	meta := map[string]string{"phonepe_order_id": out.OrderID}
	if n := len(out.PaymentDetails); n > 0 {
		last := out.PaymentDetails[n-1]
		if last.TransactionID != "" {
			meta["transaction_id"] = last.TransactionID
		}
		if last.PaymentMode != "" {
			meta["payment_mode"] = last.PaymentMode
		}
		if last.ErrorCode != "" {
			meta["failure_code"] = last.ErrorCode
		}
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderPhonePe,
		ProviderPaymentID: providerPaymentID,
		ProviderOrderID:   out.OrderID,
		Status:            model.NormalizeStatus(out.State),
		Amount:            out.Amount,
		Currency:          "INR",
		Metadata:          meta,
	}, nil
}

func (a *PhonePeAdapter) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	return nil, domain.NewPaymentError(domain.CodeCaptureNotSupported, "phonepe",
		"phonepe settles automatically; capture is not a separate call", nil)
}

func (a *PhonePeAdapter) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	merchantRefundID := notes["refund_id"]
	if merchantRefundID == "" {
		merchantRefundID = uuid.NewString()
	}
	body := map[string]interface{}{
		"merchantRefundId":        merchantRefundID,
		"originalMerchantOrderId": providerPaymentID,
		"amount":                  amount,
	}
	resp, err := a.do(ctx, http.MethodPost, "/payments/v2/refund", "create_refund", body)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create refund", resp, domain.CodePaymentNotFound)
	}

	var out struct {
		RefundID string `json:"refundId"`
		State    string `json:"state"`
		Amount   int64  `json:"amount"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "phonepe", "unparseable refund response", err)
	}
	return &adapter.RefundResult{
		Provider:         model.ProviderPhonePe,
		ProviderRefundID: merchantRefundID,
		Status:           model.NormalizeRefundStatus(out.State),
		Amount:           out.Amount,
		Currency:         "INR",
		Metadata:         map[string]string{"phonepe_refund_id": out.RefundID},
	}, nil
}

func (a *PhonePeAdapter) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	resp, err := a.do(ctx, http.MethodGet, "/payments/v2/refund/"+providerRefundID+"/status", "refund_status", nil)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("refund status", resp, domain.CodeRefundNotFound)
	}

	var out struct {
		MerchantRefundID        string `json:"merchantRefundId"`
		OriginalMerchantOrderID string `json:"originalMerchantOrderId"`
		Amount                  int64  `json:"amount"`
		State                   string `json:"state"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "phonepe", "unparseable refund status response", err)
	}

	res := &adapter.RefundResult{
		Provider:         model.ProviderPhonePe,
		ProviderRefundID: providerRefundID,
		Status:           model.NormalizeRefundStatus(out.State),
		Amount:           out.Amount,
		Currency:         "INR",
	}
	if res.Status == model.RefundStatusCompleted {
		at := time.Now()
		res.ProcessedAt = &at
	}
	return res, nil
}

// VerifyWebhook checks the Authorization header, which PhonePe sets to
// SHA256(username:password) of the credentials configured on their
// dashboard. A mismatch is an authorization failure, not a signature one.
func (a *PhonePeAdapter) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	auth := headerValue(headers, "Authorization")
	if auth == "" {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
	}
	expected := sha256Hex(a.webhookUser + ":" + a.webhookPass)
	if !equalHexDigest(expected, strings.TrimPrefix(auth, "SHA256 ")) {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonAuthorizationInvalid}
	}

	var envelope struct {
		Event   string `json:"event"`
		Type    string `json:"type"`
		Payload struct {
			MerchantOrderID         string `json:"merchantOrderId"`
			MerchantRefundID        string `json:"merchantRefundId"`
			OriginalMerchantOrderID string `json:"originalMerchantOrderId"`
			OrderID                 string `json:"orderId"`
			RefundID                string `json:"refundId"`
			State                   string `json:"state"`
			Amount                  int64  `json:"amount"`
			Timestamp               int64  `json:"timestamp"`
			MetaInfo                struct {
				UDF1 string `json:"udf1"`
			} `json:"metaInfo"`
			PaymentDetails []phonepeAttempt `json:"paymentDetails"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMalformedPayload, Err: err}
	}

	event := envelope.Event
	if event == "" {
		event = envelope.Type
	}
	p := envelope.Payload

	occurred := time.Now()
	if p.Timestamp > 0 {
		occurred = time.UnixMilli(p.Timestamp)
	}

	ev := &model.WebhookEvent{
		Provider:   model.ProviderPhonePe,
		EventType:  event,
		OccurredAt: occurred,
		Raw:        map[string]string{},
	}

	if strings.Contains(strings.ToLower(event), "refund") {
		ev.ProviderPaymentID = p.OriginalMerchantOrderID
		ev.ProviderRefundID = p.MerchantRefundID
		ev.Amount = p.Amount
		ev.Currency = "INR"
		ev.RefundStatus = model.NormalizeRefundStatus(p.State)
		ev.DedupeKey = event + ":" + p.MerchantRefundID + ":" + strings.ToLower(p.State)
		if p.RefundID != "" {
			ev.Raw["phonepe_refund_id"] = p.RefundID
		}
	} else {
		ev.ProviderPaymentID = p.MerchantOrderID
		ev.ProviderOrderID = p.OrderID
		ev.OrderID = p.MetaInfo.UDF1
		ev.Amount = p.Amount
		ev.Currency = "INR"
		ev.Status = model.NormalizeStatus(p.State)
		ev.DedupeKey = event + ":" + p.MerchantOrderID + ":" + strings.ToLower(p.State)
		if n := len(p.PaymentDetails); n > 0 {
			last := p.PaymentDetails[n-1]
			if last.TransactionID != "" {
				ev.Raw["transaction_id"] = last.TransactionID
			}
			if last.ErrorCode != "" {
				ev.Raw["failure_code"] = last.ErrorCode
			}
		}
	}
	if p.MerchantOrderID == "" && p.MerchantRefundID == "" {
		ev.DedupeKey = bodyDigest(body)
	}
	return adapter.WebhookVerification{Verified: true, Event: ev}
}

// HealthCheck exercises the OAuth endpoint; a token in hand means the
// gateway is reachable and the credentials work.
func (a *PhonePeAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	start := time.Now()
	_, err := a.tokens.Token(ctx)
	status := adapter.HealthStatus{Latency: time.Since(start), CheckedAt: time.Now()}
	if err != nil {
		status.Detail = "token endpoint: " + err.Error()
		return status
	}
	status.Healthy = true
	return status
}

func (a *PhonePeAdapter) SupportedMethods() []string {
	cs, _ := model.Capabilities(model.ProviderPhonePe)
	return cs.Methods()
}

func (a *PhonePeAdapter) SupportedCurrencies() []string {
	cs, _ := model.Capabilities(model.ProviderPhonePe)
	return cs.Currencies
}

func (a *PhonePeAdapter) ValidateConfig() error {
	if missing := missingConfigKeys(a.cfg, model.RequiredConfigKeys(model.ProviderPhonePe)); len(missing) > 0 {
		return &domain.ConfigurationError{
			Provider:    string(model.ProviderPhonePe),
			Environment: string(a.cfg.Env),
			Tenant:      a.cfg.TenantID,
			MissingKeys: missing,
		}
	}
	return nil
}

func (a *PhonePeAdapter) apiError(op string, resp *resty.Response, notFoundCode string) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	code := domain.CodeGatewayError
	switch resp.StatusCode() {
	case http.StatusNotFound:
		code = notFoundCode
	case http.StatusBadRequest:
		code = domain.CodeInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		code = domain.CodeTokenExpired
	}

	var cause error
	if body.Message != "" {
		cause = fmt.Errorf("phonepe %s: %s", body.Code, body.Message)
	}
	msg := fmt.Sprintf("%s rejected (http %d)", op, resp.StatusCode())
	return domain.NewPaymentError(code, "phonepe", msg, cause)
}
