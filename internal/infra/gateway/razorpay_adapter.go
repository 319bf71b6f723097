package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayAdapter speaks Razorpay's JSON API with basic auth. Test and live
// are selected by the key pair, not the endpoint.
type RazorpayAdapter struct {
	cfg           *model.ResolvedConfig
	keyID         string
	keySecret     string
	webhookSecret string
	client        *Client
	log           *zerolog.Logger
}

var _ adapter.PaymentGateway = (*RazorpayAdapter)(nil)

func NewRazorpayAdapter(cfg *model.ResolvedConfig, timeout time.Duration, logger *zerolog.Logger) (*RazorpayAdapter, error) {
	a := &RazorpayAdapter{cfg: cfg, log: logger}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	a.keyID, _ = cfg.Field("key_id")
	a.keySecret, _ = cfg.Field("key_secret")
	a.webhookSecret, _ = cfg.Field("webhook_secret")

	baseURL := razorpayBaseURL
	if ep, ok := cfg.Field("endpoint"); ok && ep != "" {
		baseURL = ep
	}
	a.client = NewClient(model.ProviderRazorpay, baseURL, timeout, logger)
	return a, nil
}

func (a *RazorpayAdapter) Provider() model.Provider { return model.ProviderRazorpay }

type razorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type razorpayPayment struct {
	ID           string            `json:"id"`
	OrderID      string            `json:"order_id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Method       string            `json:"method"`
	VPA          string            `json:"vpa"`
	Notes        map[string]string `json:"notes"`
	ErrorCode    string            `json:"error_code"`
	ErrorDesc    string            `json:"error_description"`
	CreatedAt    int64             `json:"created_at"`
	AcquirerData struct {
		RRN string `json:"rrn"`
	} `json:"acquirer_data"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

func (a *RazorpayAdapter) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	notes := map[string]string{"order_id": p.OrderID, "payment_id": p.PaymentID}
	for k, v := range p.Notes {
		notes[k] = v
	}
	body := map[string]interface{}{
		"amount":   p.Amount,
		"currency": p.Currency,
		"receipt":  p.PaymentID,
		"notes":    notes,
	}

	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret).SetBody(body)
	resp, err := a.client.Do(req, http.MethodPost, "/orders", "create_payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create payment", resp, domain.CodeInvalidRequest)
	}

	var order razorpayOrder
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "razorpay", "unparseable order response", err)
	}

	meta := map[string]string{
		"checkout_order_id": order.ID,
		"checkout_key_id":   a.keyID,
	}
	if p.VPA != "" {
		meta["payer_vpa"] = p.VPA
	}
	return &adapter.PaymentResult{
		Provider:        model.ProviderRazorpay,
		ProviderOrderID: order.ID,
		Status:          model.NormalizeStatus(order.Status),
		Amount:          order.Amount,
		Currency:        order.Currency,
		Metadata:        meta,
	}, nil
}

func (a *RazorpayAdapter) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret)
	resp, err := a.client.Do(req, http.MethodGet, "/payments/"+providerPaymentID, "verify_payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("verify payment", resp, domain.CodePaymentNotFound)
	}

	var pay razorpayPayment
	if err := json.Unmarshal(resp.Body(), &pay); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "razorpay", "unparseable payment response", err)
	}
	return a.paymentResult(&pay), nil
}

func (a *RazorpayAdapter) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	body := map[string]interface{}{"amount": amount, "currency": "INR"}
	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret).SetBody(body)
	resp, err := a.client.Do(req, http.MethodPost, "/payments/"+providerPaymentID+"/capture", "capture_payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("capture payment", resp, domain.CodePaymentNotFound)
	}

	var pay razorpayPayment
	if err := json.Unmarshal(resp.Body(), &pay); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "razorpay", "unparseable capture response", err)
	}
	return a.paymentResult(&pay), nil
}

func (a *RazorpayAdapter) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	body := map[string]interface{}{"amount": amount}
	if len(notes) > 0 {
		body["notes"] = notes
	}
	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret).SetBody(body)
	resp, err := a.client.Do(req, http.MethodPost, "/payments/"+providerPaymentID+"/refund", "create_refund")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create refund", resp, domain.CodePaymentNotFound)
	}

	var rf razorpayRefund
	if err := json.Unmarshal(resp.Body(), &rf); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "razorpay", "unparseable refund response", err)
	}
	return a.refundResult(&rf), nil
}

func (a *RazorpayAdapter) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret)
	resp, err := a.client.Do(req, http.MethodGet, "/refunds/"+providerRefundID, "refund_status")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("refund status", resp, domain.CodeRefundNotFound)
	}

	var rf razorpayRefund
	if err := json.Unmarshal(resp.Body(), &rf); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "razorpay", "unparseable refund response", err)
	}
	return a.refundResult(&rf), nil
}

// VerifyWebhook checks X-Razorpay-Signature (hex HMAC-SHA256 over the raw
// body) and normalizes payment.* / refund.* events.
func (a *RazorpayAdapter) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	sig := headerValue(headers, "X-Razorpay-Signature")
	if sig == "" {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
	}
	expected := hmacSHA256Hex(a.webhookSecret, body)
	if !equalHexDigest(expected, sig) {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonSignatureInvalid}
	}

	var envelope struct {
		Event     string `json:"event"`
		CreatedAt int64  `json:"created_at"`
		Payload   struct {
			Payment struct {
				Entity razorpayPayment `json:"entity"`
			} `json:"payment"`
			Refund struct {
				Entity razorpayRefund `json:"entity"`
			} `json:"refund"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMalformedPayload, Err: err}
	}

	dedupe := headerValue(headers, "X-Razorpay-Event-Id")
	if dedupe == "" {
		dedupe = bodyDigest(body)
	}

	ev := &model.WebhookEvent{
		Provider:   model.ProviderRazorpay,
		EventType:  envelope.Event,
		DedupeKey:  dedupe,
		OccurredAt: time.Unix(envelope.CreatedAt, 0),
		Raw:        map[string]string{},
	}

	switch {
	case strings.HasPrefix(envelope.Event, "refund."):
		rf := envelope.Payload.Refund.Entity
		ev.ProviderPaymentID = rf.PaymentID
		ev.ProviderRefundID = rf.ID
		ev.Amount = rf.Amount
		ev.Currency = rf.Currency
		ev.RefundStatus = model.NormalizeRefundStatus(rf.Status)
	default:
		pay := envelope.Payload.Payment.Entity
		ev.ProviderPaymentID = pay.ID
		ev.ProviderOrderID = pay.OrderID
		ev.OrderID = pay.Notes["order_id"]
		ev.Amount = pay.Amount
		ev.Currency = pay.Currency
		ev.Status = model.NormalizeStatus(pay.Status)
		if pay.ErrorCode != "" {
			ev.Raw["failure_code"] = pay.ErrorCode
		}
		if pay.VPA != "" {
			ev.Raw["payer_vpa"] = pay.VPA
		}
		if pay.AcquirerData.RRN != "" {
			ev.Raw["masked_utr"] = pay.AcquirerData.RRN
		}
	}

	return adapter.WebhookVerification{Verified: true, Event: ev}
}

func (a *RazorpayAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	start := time.Now()
	req := a.client.Request(ctx).SetBasicAuth(a.keyID, a.keySecret).SetQueryParam("count", "1")
	resp, err := a.client.Do(req, http.MethodGet, "/payments", "health_check")
	status := adapter.HealthStatus{Latency: time.Since(start), CheckedAt: time.Now()}
	switch {
	case err != nil:
		status.Detail = "unreachable: " + err.Error()
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		status.Detail = "authentication rejected"
	case resp.IsError():
		status.Detail = fmt.Sprintf("http %d", resp.StatusCode())
	default:
		status.Healthy = true
	}
	return status
}

func (a *RazorpayAdapter) SupportedMethods() []string {
	cs, _ := model.Capabilities(model.ProviderRazorpay)
	return cs.Methods()
}

func (a *RazorpayAdapter) SupportedCurrencies() []string {
	cs, _ := model.Capabilities(model.ProviderRazorpay)
	return cs.Currencies
}

func (a *RazorpayAdapter) ValidateConfig() error {
	if missing := missingConfigKeys(a.cfg, model.RequiredConfigKeys(model.ProviderRazorpay)); len(missing) > 0 {
		return &domain.ConfigurationError{
			Provider:    string(model.ProviderRazorpay),
			Environment: string(a.cfg.Env),
			Tenant:      a.cfg.TenantID,
			MissingKeys: missing,
		}
	}
	return nil
}

func (a *RazorpayAdapter) paymentResult(pay *razorpayPayment) *adapter.PaymentResult {
	meta := map[string]string{}
	if pay.VPA != "" {
		meta["payer_vpa"] = pay.VPA
	}
	if pay.AcquirerData.RRN != "" {
		meta["masked_utr"] = pay.AcquirerData.RRN
	}
	if pay.ErrorCode != "" {
		meta["failure_code"] = pay.ErrorCode
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderRazorpay,
		ProviderPaymentID: pay.ID,
		ProviderOrderID:   pay.OrderID,
		Status:            model.NormalizeStatus(pay.Status),
		Amount:            pay.Amount,
		Currency:          pay.Currency,
		Metadata:          meta,
	}
}

func (a *RazorpayAdapter) refundResult(rf *razorpayRefund) *adapter.RefundResult {
	res := &adapter.RefundResult{
		Provider:         model.ProviderRazorpay,
		ProviderRefundID: rf.ID,
		Status:           model.NormalizeRefundStatus(rf.Status),
		Amount:           rf.Amount,
		Currency:         rf.Currency,
	}
	if res.Status == model.RefundStatusCompleted && rf.CreatedAt > 0 {
		at := time.Unix(rf.CreatedAt, 0)
		res.ProcessedAt = &at
	}
	return res
}

// apiError maps an HTTP error response to a stable payment code. The raw
// body stays out of the message; the parsed description rides the cause.
func (a *RazorpayAdapter) apiError(op string, resp *resty.Response, notFoundCode string) error {
	var body razorpayErrorBody
	_ = json.Unmarshal(resp.Body(), &body)

	code := domain.CodeGatewayError
	desc := strings.ToLower(body.Error.Description)
	switch {
	case strings.Contains(desc, "already been captured"):
		code = domain.CodeDuplicateCapture
	case resp.StatusCode() == http.StatusNotFound:
		code = notFoundCode
	case resp.StatusCode() == http.StatusBadRequest:
		code = domain.CodeInvalidRequest
	}

	var cause error
	if body.Error.Description != "" {
		cause = fmt.Errorf("razorpay %s: %s", body.Error.Code, body.Error.Description)
	}
	msg := fmt.Sprintf("%s rejected (http %d)", op, resp.StatusCode())
	return domain.NewPaymentError(code, "razorpay", msg, cause)
}
