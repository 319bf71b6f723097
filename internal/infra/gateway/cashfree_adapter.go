package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const (
	cashfreeTestBase   = "https://sandbox.cashfree.com/pg"
	cashfreeLiveBase   = "https://api.cashfree.com/pg"
	cashfreeAPIVersion = "2023-08-01"
)

// CashfreeAdapter speaks Cashfree PG. Orders are keyed by our payment ID,
// so ProviderPaymentID is that ID; Cashfree's cf ids ride in metadata.
// Amounts cross the wire as rupee decimals, converted at the boundary.
type CashfreeAdapter struct {
	cfg       *model.ResolvedConfig
	appID     string
	secretKey string
	client    *Client
	log       *zerolog.Logger
}

var _ adapter.PaymentGateway = (*CashfreeAdapter)(nil)

func NewCashfreeAdapter(cfg *model.ResolvedConfig, timeout time.Duration, logger *zerolog.Logger) (*CashfreeAdapter, error) {
	a := &CashfreeAdapter{cfg: cfg, log: logger}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	a.appID, _ = cfg.Field("app_id")
	a.secretKey, _ = cfg.Field("secret_key")

	baseURL := cashfreeTestBase
	if cfg.Env == model.EnvLive {
		baseURL = cashfreeLiveBase
	}
	if ep, ok := cfg.Field("endpoint"); ok && ep != "" {
		baseURL = ep
	}
	a.client = NewClient(model.ProviderCashfree, baseURL, timeout, logger)
	return a, nil
}

func (a *CashfreeAdapter) Provider() model.Provider { return model.ProviderCashfree }

func (a *CashfreeAdapter) request(ctx context.Context) *resty.Request {
	return a.client.Request(ctx).
		SetHeader("x-client-id", a.appID).
		SetHeader("x-client-secret", a.secretKey).
		SetHeader("x-api-version", cashfreeAPIVersion)
}

func rupees(paise int64) float64 { return float64(paise) / 100 }

func paiseFromRupees(v float64) int64 { return int64(math.Round(v * 100)) }

type cashfreeOrder struct {
	CFOrderID        string  `json:"cf_order_id"`
	OrderID          string  `json:"order_id"`
	OrderAmount      float64 `json:"order_amount"`
	OrderCurrency    string  `json:"order_currency"`
	OrderStatus      string  `json:"order_status"`
	PaymentSessionID string  `json:"payment_session_id"`
}

type cashfreePayment struct {
	CFPaymentID   json.Number `json:"cf_payment_id"`
	OrderID       string      `json:"order_id"`
	PaymentStatus string      `json:"payment_status"`
	PaymentAmount float64     `json:"payment_amount"`
	Currency      string      `json:"payment_currency"`
	BankReference string      `json:"bank_reference"`
	Message       string      `json:"payment_message"`
	Time          string      `json:"payment_time"`
	Group         string      `json:"payment_group"`
}

type cashfreeRefund struct {
	CFRefundID   string  `json:"cf_refund_id"`
	RefundID     string  `json:"refund_id"`
	OrderID      string  `json:"order_id"`
	RefundStatus string  `json:"refund_status"`
	RefundAmount float64 `json:"refund_amount"`
	Currency     string  `json:"refund_currency"`
	ProcessedAt  string  `json:"processed_at"`
}

type cashfreeErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (a *CashfreeAdapter) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	customerID := p.CustomerID
	if customerID == "" {
		customerID = "cust_" + p.OrderID
	}
	body := map[string]interface{}{
		"order_id":       p.PaymentID,
		"order_amount":   rupees(p.Amount),
		"order_currency": p.Currency,
		"order_note":     p.Description,
		"customer_details": map[string]string{
			"customer_id":    customerID,
			"customer_email": p.Email,
			"customer_phone": p.Phone,
		},
		"order_meta": map[string]string{
			"return_url": p.CallbackURL,
			"notify_url": p.CallbackURL,
		},
		"order_tags": map[string]string{"merchant_order_id": p.OrderID},
	}

	req := a.request(ctx).SetBody(body)
	resp, err := a.client.Do(req, http.MethodPost, "/orders", "create_payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create payment", resp, domain.CodeInvalidRequest)
	}

	var order cashfreeOrder
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "cashfree", "unparseable order response", err)
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderCashfree,
		ProviderPaymentID: order.OrderID,
		ProviderOrderID:   order.CFOrderID,
		Status:            model.NormalizeStatus(order.OrderStatus),
		Amount:            paiseFromRupees(order.OrderAmount),
		Currency:          order.OrderCurrency,
		Metadata: map[string]string{
			"payment_session_id": order.PaymentSessionID,
			"cf_order_id":        order.CFOrderID,
		},
	}, nil
}

// VerifyPayment fetches the attempts for an order and reports the decisive
// one: a success wins outright, otherwise the most recent attempt.
func (a *CashfreeAdapter) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	req := a.request(ctx)
	resp, err := a.client.Do(req, http.MethodGet, "/orders/"+providerPaymentID+"/payments", "verify_payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("verify payment", resp, domain.CodePaymentNotFound)
	}

	var attempts []cashfreePayment
	if err := json.Unmarshal(resp.Body(), &attempts); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "cashfree", "unparseable payments response", err)
	}
	if len(attempts) == 0 {
		return &adapter.PaymentResult{
			Provider:          model.ProviderCashfree,
			ProviderPaymentID: providerPaymentID,
			Status:            model.PaymentStatusInitiated,
			Currency:          "INR",
			Metadata:          map[string]string{},
		}, nil
	}

	chosen := attempts[0]
	for _, at := range attempts {
		if strings.EqualFold(at.PaymentStatus, "SUCCESS") {
			chosen = at
			break
		}
	}
	return a.paymentResult(providerPaymentID, &chosen), nil
}

func (a *CashfreeAdapter) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	return nil, domain.NewPaymentError(domain.CodeCaptureNotSupported, "cashfree",
		"cashfree settles automatically; capture is not a separate call", nil)
}

func (a *CashfreeAdapter) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	refundID := notes["refund_id"]
	if refundID == "" {
		refundID = fmt.Sprintf("rf_%d", time.Now().UnixNano())
	}
	body := map[string]interface{}{
		"refund_id":     refundID,
		"refund_amount": rupees(amount),
		"refund_note":   notes["reason"],
	}

	req := a.request(ctx).SetBody(body)
	resp, err := a.client.Do(req, http.MethodPost, "/orders/"+providerPaymentID+"/refunds", "create_refund")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("create refund", resp, domain.CodePaymentNotFound)
	}

	var rf cashfreeRefund
	if err := json.Unmarshal(resp.Body(), &rf); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "cashfree", "unparseable refund response", err)
	}
	return a.refundResult(providerPaymentID, &rf), nil
}

// RefundStatus takes the composite id CreateRefund returned, order/refund,
// because Cashfree scopes refund lookups under the order.
func (a *CashfreeAdapter) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	orderID, refundID, ok := strings.Cut(providerRefundID, "/")
	if !ok {
		return nil, domain.NewPaymentError(domain.CodeInvalidRequest, "cashfree",
			"refund id must be order_id/refund_id", nil)
	}

	req := a.request(ctx)
	resp, err := a.client.Do(req, http.MethodGet, "/orders/"+orderID+"/refunds/"+refundID, "refund_status")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, a.apiError("refund status", resp, domain.CodeRefundNotFound)
	}

	var rf cashfreeRefund
	if err := json.Unmarshal(resp.Body(), &rf); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "cashfree", "unparseable refund response", err)
	}
	return a.refundResult(orderID, &rf), nil
}

// VerifyWebhook checks x-webhook-signature, a base64 HMAC-SHA256 over
// timestamp + raw body.
func (a *CashfreeAdapter) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	sig := headerValue(headers, "x-webhook-signature")
	if sig == "" {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
	}
	ts := headerValue(headers, "x-webhook-timestamp")
	signed := append([]byte(ts), body...)
	if !equalDigest(hmacSHA256Base64(a.secretKey, signed), sig) {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonSignatureInvalid}
	}

	var envelope struct {
		Type      string `json:"type"`
		EventTime string `json:"event_time"`
		Data      struct {
			Order struct {
				OrderID       string  `json:"order_id"`
				OrderAmount   float64 `json:"order_amount"`
				OrderCurrency string  `json:"order_currency"`
				OrderTags     struct {
					MerchantOrderID string `json:"merchant_order_id"`
				} `json:"order_tags"`
			} `json:"order"`
			Payment cashfreePayment `json:"payment"`
			Refund  cashfreeRefund  `json:"refund"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMalformedPayload, Err: err}
	}

	dedupe := headerValue(headers, "x-idempotency-key")
	if dedupe == "" {
		dedupe = bodyDigest(body)
	}

	occurred := time.Now()
	if t, err := time.Parse(time.RFC3339, envelope.EventTime); err == nil {
		occurred = t
	}

	ev := &model.WebhookEvent{
		Provider:   model.ProviderCashfree,
		EventType:  envelope.Type,
		DedupeKey:  dedupe,
		OccurredAt: occurred,
		Raw:        map[string]string{},
	}

	if strings.HasPrefix(envelope.Type, "REFUND") {
		rf := envelope.Data.Refund
		ev.ProviderPaymentID = rf.OrderID
		ev.ProviderRefundID = rf.OrderID + "/" + rf.RefundID
		ev.Amount = paiseFromRupees(rf.RefundAmount)
		ev.Currency = orDefault(rf.Currency, "INR")
		ev.RefundStatus = model.NormalizeRefundStatus(rf.RefundStatus)
		ev.Raw["cf_refund_id"] = rf.CFRefundID
		return adapter.WebhookVerification{Verified: true, Event: ev}
	}

	pay := envelope.Data.Payment
	ev.ProviderPaymentID = envelope.Data.Order.OrderID
	ev.OrderID = envelope.Data.Order.OrderTags.MerchantOrderID
	ev.Status = model.NormalizeStatus(pay.PaymentStatus)
	ev.Amount = paiseFromRupees(pay.PaymentAmount)
	if ev.Amount == 0 {
		ev.Amount = paiseFromRupees(envelope.Data.Order.OrderAmount)
	}
	ev.Currency = orDefault(pay.Currency, envelope.Data.Order.OrderCurrency)
	if v := pay.CFPaymentID.String(); v != "" && v != "0" {
		ev.Raw["cf_payment_id"] = v
	}
	if pay.BankReference != "" {
		ev.Raw["bank_reference"] = pay.BankReference
	}
	if pay.Message != "" {
		ev.Raw["payment_message"] = pay.Message
	}
	return adapter.WebhookVerification{Verified: true, Event: ev}
}

func (a *CashfreeAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	start := time.Now()
	req := a.request(ctx)
	resp, err := a.client.Do(req, http.MethodGet, "/orders/healthcheck-probe", "health_check")
	status := adapter.HealthStatus{Latency: time.Since(start), CheckedAt: time.Now()}
	switch {
	case err != nil:
		status.Detail = "unreachable: " + err.Error()
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		status.Detail = "authentication rejected"
	default:
		// A 404 for the probe order still proves auth and reachability.
		status.Healthy = true
	}
	return status
}

func (a *CashfreeAdapter) SupportedMethods() []string {
	cs, _ := model.Capabilities(model.ProviderCashfree)
	return cs.Methods()
}

func (a *CashfreeAdapter) SupportedCurrencies() []string {
	cs, _ := model.Capabilities(model.ProviderCashfree)
	return cs.Currencies
}

func (a *CashfreeAdapter) ValidateConfig() error {
	if missing := missingConfigKeys(a.cfg, model.RequiredConfigKeys(model.ProviderCashfree)); len(missing) > 0 {
		return &domain.ConfigurationError{
			Provider:    string(model.ProviderCashfree),
			Environment: string(a.cfg.Env),
			Tenant:      a.cfg.TenantID,
			MissingKeys: missing,
		}
	}
	return nil
}

func (a *CashfreeAdapter) paymentResult(orderID string, pay *cashfreePayment) *adapter.PaymentResult {
	meta := map[string]string{}
	if v := pay.CFPaymentID.String(); v != "" && v != "0" {
		meta["cf_payment_id"] = v
	}
	if pay.BankReference != "" {
		meta["bank_reference"] = pay.BankReference
	}
	if pay.Group != "" {
		meta["payment_group"] = pay.Group
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderCashfree,
		ProviderPaymentID: orderID,
		Status:            model.NormalizeStatus(pay.PaymentStatus),
		Amount:            paiseFromRupees(pay.PaymentAmount),
		Currency:          orDefault(pay.Currency, "INR"),
		Metadata:          meta,
	}
}

func (a *CashfreeAdapter) refundResult(orderID string, rf *cashfreeRefund) *adapter.RefundResult {
	res := &adapter.RefundResult{
		Provider:         model.ProviderCashfree,
		ProviderRefundID: orderID + "/" + rf.RefundID,
		Status:           model.NormalizeRefundStatus(rf.RefundStatus),
		Amount:           paiseFromRupees(rf.RefundAmount),
		Currency:         orDefault(rf.Currency, "INR"),
		Metadata:         map[string]string{"cf_refund_id": rf.CFRefundID},
	}
	if t, err := time.Parse(time.RFC3339, rf.ProcessedAt); err == nil {
		res.ProcessedAt = &t
	}
	return res
}

func (a *CashfreeAdapter) apiError(op string, resp *resty.Response, notFoundCode string) error {
	var body cashfreeErrorBody
	_ = json.Unmarshal(resp.Body(), &body)

	code := domain.CodeGatewayError
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		code = notFoundCode
	case resp.StatusCode() == http.StatusBadRequest:
		code = domain.CodeInvalidRequest
		if strings.Contains(strings.ToLower(body.Message), "exceed") {
			code = domain.CodeAmountExceedsPayment
		}
	}

	var cause error
	if body.Message != "" {
		cause = fmt.Errorf("cashfree %s: %s", body.Code, body.Message)
	}
	msg := fmt.Sprintf("%s rejected (http %d)", op, resp.StatusCode())
	return domain.NewPaymentError(code, "cashfree", msg, cause)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
