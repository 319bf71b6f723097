package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const (
	payuTestAPIBase = "https://test.payu.in"
	payuLiveAPIBase = "https://info.payu.in"

	payuTestCheckout = "https://test.payu.in/_payment"
	payuLiveCheckout = "https://secure.payu.in/_payment"
)

// PayUAdapter drives PayU's form-hash checkout and its postservice API.
// PayU keys every lookup by the merchant transaction ID, so
// ProviderPaymentID is the txnid we generated at create time; PayU's own
// mihpayid travels in result metadata.
type PayUAdapter struct {
	cfg         *model.ResolvedConfig
	merchantKey string
	salt        string
	checkoutURL string
	client      *Client
	log         *zerolog.Logger
}

var _ adapter.PaymentGateway = (*PayUAdapter)(nil)

func NewPayUAdapter(cfg *model.ResolvedConfig, timeout time.Duration, logger *zerolog.Logger) (*PayUAdapter, error) {
	a := &PayUAdapter{cfg: cfg, log: logger}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	a.merchantKey, _ = cfg.Field("merchant_key")
	a.salt, _ = cfg.Field("merchant_salt")

	apiBase, checkout := payuTestAPIBase, payuTestCheckout
	if cfg.Env == model.EnvLive {
		apiBase, checkout = payuLiveAPIBase, payuLiveCheckout
	}
	if ep, ok := cfg.Field("endpoint"); ok && ep != "" {
		apiBase = ep
	}
	a.checkoutURL = checkout
	a.client = NewClient(model.ProviderPayU, apiBase, timeout, logger)
	return a, nil
}

func (a *PayUAdapter) Provider() model.Provider { return model.ProviderPayU }

// CreatePayment never leaves the process. PayU checkout is a browser form
// post, so this computes the request hash and hands the form material back
// through Metadata.
func (a *PayUAdapter) CreatePayment(ctx context.Context, p adapter.CreatePaymentParams) (*adapter.PaymentResult, error) {
	amount := formatRupees(p.Amount)
	productinfo := p.Description
	if productinfo == "" {
		productinfo = "order " + p.OrderID
	}
	firstname := p.CustomerID
	if firstname == "" {
		firstname = "customer"
	}

	// sha512(key|txnid|amount|productinfo|firstname|email|udf1..udf5|x6 empty|salt)
	seq := strings.Join([]string{
		a.merchantKey, p.PaymentID, amount, productinfo, firstname, p.Email,
		p.OrderID, "", "", "", "",
		"", "", "", "", "", "",
		a.salt,
	}, "|")
	hash := sha512Hex(seq)

	meta := map[string]string{
		"checkout_url":  a.checkoutURL,
		"checkout_key":  a.merchantKey,
		"checkout_hash": hash,
		"txnid":         p.PaymentID,
		"amount":        amount,
		"productinfo":   productinfo,
		"firstname":     firstname,
		"email":         p.Email,
		"phone":         p.Phone,
		"udf1":          p.OrderID,
		"surl":          p.CallbackURL,
		"furl":          p.CallbackURL,
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderPayU,
		ProviderPaymentID: p.PaymentID,
		Status:            model.PaymentStatusInitiated,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Metadata:          meta,
	}, nil
}

type payuTxnDetail struct {
	MihPayID   string `json:"mihpayid"`
	TxnID      string `json:"txnid"`
	Status     string `json:"status"`
	Amount     string `json:"amt"`
	Mode       string `json:"mode"`
	BankRefNum string `json:"bank_ref_num"`
	ErrorCode  string `json:"error_code"`
	ErrorMsg   string `json:"error_Message"`
}

type payuVerifyResponse struct {
	Status             int                      `json:"status"`
	Msg                string                   `json:"msg"`
	TransactionDetails map[string]payuTxnDetail `json:"transaction_details"`
}

func (a *PayUAdapter) VerifyPayment(ctx context.Context, providerPaymentID string) (*adapter.PaymentResult, error) {
	detail, err := a.fetchTxn(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}

	amount, _ := parseRupees(detail.Amount)
	meta := map[string]string{}
	if detail.MihPayID != "" {
		meta["mihpayid"] = detail.MihPayID
	}
	if detail.Mode != "" {
		meta["mode"] = detail.Mode
	}
	if detail.BankRefNum != "" {
		meta["bank_ref_num"] = detail.BankRefNum
	}
	if detail.ErrorCode != "" && detail.ErrorCode != "E000" {
		meta["failure_code"] = detail.ErrorCode
	}
	return &adapter.PaymentResult{
		Provider:          model.ProviderPayU,
		ProviderPaymentID: providerPaymentID,
		Status:            model.NormalizeStatus(detail.Status),
		Amount:            amount,
		Currency:          "INR",
		Metadata:          meta,
	}, nil
}

func (a *PayUAdapter) CapturePayment(ctx context.Context, providerPaymentID string, amount int64) (*adapter.PaymentResult, error) {
	return nil, domain.NewPaymentError(domain.CodeCaptureNotSupported, "payu",
		"payu settles automatically; capture is not a separate call", nil)
}

type payuActionResponse struct {
	Status    int             `json:"status"`
	Msg       string          `json:"msg"`
	RequestID json.RawMessage `json:"request_id"`
}

func (a *PayUAdapter) CreateRefund(ctx context.Context, providerPaymentID string, amount int64, notes map[string]string) (*adapter.RefundResult, error) {
	// Refunds address the gateway's mihpayid, not our txnid.
	detail, err := a.fetchTxn(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if detail.MihPayID == "" {
		return nil, domain.NewPaymentError(domain.CodePaymentNotCaptured, "payu",
			"no gateway payment id yet; transaction has not completed", nil)
	}

	token := notes["refund_id"]
	if token == "" {
		token = uuid.NewString()
	}
	resp, err := a.postCommand(ctx, "cancel_refund_transaction", "create_refund", map[string]string{
		"var1": detail.MihPayID,
		"var2": token,
		"var3": formatRupees(amount),
	})
	if err != nil {
		return nil, err
	}

	var action payuActionResponse
	if err := json.Unmarshal(resp, &action); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "payu", "unparseable refund response", err)
	}
	if action.Status != 1 {
		code := domain.CodeGatewayError
		if strings.Contains(strings.ToLower(action.Msg), "insufficient") ||
			strings.Contains(strings.ToLower(action.Msg), "amount") {
			code = domain.CodeAmountExceedsPayment
		}
		return nil, domain.NewPaymentError(code, "payu", "refund rejected",
			fmt.Errorf("payu: %s", action.Msg))
	}

	requestID := strings.Trim(string(action.RequestID), `"`)
	return &adapter.RefundResult{
		Provider:         model.ProviderPayU,
		ProviderRefundID: requestID,
		Status:           model.RefundStatusPending,
		Amount:           amount,
		Currency:         "INR",
		Metadata:         map[string]string{"mihpayid": detail.MihPayID, "refund_token": token},
	}, nil
}

func (a *PayUAdapter) RefundStatus(ctx context.Context, providerRefundID string) (*adapter.RefundResult, error) {
	resp, err := a.postCommand(ctx, "check_action_status", "refund_status", map[string]string{
		"var1": providerRefundID,
	})
	if err != nil {
		return nil, err
	}

	// transaction_details nests mihpayid -> request_id -> detail.
	var out struct {
		Status             int    `json:"status"`
		Msg                string `json:"msg"`
		TransactionDetails map[string]map[string]struct {
			Status    string `json:"status"`
			Action    string `json:"action"`
			Amount    string `json:"amt"`
			RequestID string `json:"request_id"`
		} `json:"transaction_details"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "payu", "unparseable refund status response", err)
	}
	if out.Status != 1 {
		return nil, domain.NewPaymentError(domain.CodeRefundNotFound, "payu", "refund status rejected",
			fmt.Errorf("payu: %s", out.Msg))
	}

	for _, byRequest := range out.TransactionDetails {
		for reqID, d := range byRequest {
			if reqID != providerRefundID && d.RequestID != providerRefundID {
				continue
			}
			amount, _ := parseRupees(d.Amount)
			res := &adapter.RefundResult{
				Provider:         model.ProviderPayU,
				ProviderRefundID: providerRefundID,
				Status:           model.NormalizeRefundStatus(d.Status),
				Amount:           amount,
				Currency:         "INR",
			}
			if res.Status == model.RefundStatusCompleted {
				at := time.Now()
				res.ProcessedAt = &at
			}
			return res, nil
		}
	}
	return nil, domain.NewPaymentError(domain.CodeRefundNotFound, "payu",
		"refund request not found in status response", nil)
}

// VerifyWebhook validates PayU's reverse hash over the form-encoded callback.
func (a *PayUAdapter) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) adapter.WebhookVerification {
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMalformedPayload, Err: err}
	}
	presented := vals.Get("hash")
	if presented == "" {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonMissingSignature}
	}

	status := vals.Get("status")
	// sha512(salt|status|x5 empty|udf5..udf1|email|firstname|productinfo|amount|txnid|key),
	// with additional_charges prefixed when PayU sends it.
	seq := strings.Join([]string{
		a.salt, status,
		"", "", "", "", "",
		vals.Get("udf5"), vals.Get("udf4"), vals.Get("udf3"), vals.Get("udf2"), vals.Get("udf1"),
		vals.Get("email"), vals.Get("firstname"), vals.Get("productinfo"),
		vals.Get("amount"), vals.Get("txnid"), a.merchantKey,
	}, "|")
	if ac := vals.Get("additional_charges"); ac != "" {
		seq = ac + "|" + seq
	}
	if !equalHexDigest(sha512Hex(seq), presented) {
		return adapter.WebhookVerification{Verified: false, Reason: adapter.ReasonSignatureInvalid}
	}

	amount, _ := parseRupees(vals.Get("amount"))
	ev := &model.WebhookEvent{
		Provider:          model.ProviderPayU,
		EventType:         "payment." + strings.ToLower(status),
		DedupeKey:         vals.Get("mihpayid") + ":" + strings.ToLower(status),
		ProviderPaymentID: vals.Get("txnid"),
		OrderID:           vals.Get("udf1"),
		Status:            model.NormalizeStatus(status),
		Amount:            amount,
		Currency:          "INR",
		OccurredAt:        time.Now(),
		Raw:               map[string]string{},
	}
	if v := vals.Get("mihpayid"); v != "" {
		ev.Raw["mihpayid"] = v
	}
	if v := vals.Get("mode"); v != "" {
		ev.Raw["mode"] = v
	}
	if v := vals.Get("bank_ref_num"); v != "" {
		ev.Raw["bank_ref_num"] = v
	}
	if v := vals.Get("error_code"); v != "" && v != "E000" {
		ev.Raw["failure_code"] = v
	}
	return adapter.WebhookVerification{Verified: true, Event: ev}
}

// HealthCheck probes the postservice endpoint with a throwaway verify. A
// well-formed "not found" still proves reachability and valid credentials.
func (a *PayUAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	start := time.Now()
	_, err := a.postCommand(ctx, "verify_payment", "health_check", map[string]string{
		"var1": "healthcheck-probe",
	})
	status := adapter.HealthStatus{Latency: time.Since(start), CheckedAt: time.Now()}
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

func (a *PayUAdapter) SupportedMethods() []string {
	cs, _ := model.Capabilities(model.ProviderPayU)
	return cs.Methods()
}

func (a *PayUAdapter) SupportedCurrencies() []string {
	cs, _ := model.Capabilities(model.ProviderPayU)
	return cs.Currencies
}

func (a *PayUAdapter) ValidateConfig() error {
	if missing := missingConfigKeys(a.cfg, model.RequiredConfigKeys(model.ProviderPayU)); len(missing) > 0 {
		return &domain.ConfigurationError{
			Provider:    string(model.ProviderPayU),
			Environment: string(a.cfg.Env),
			Tenant:      a.cfg.TenantID,
			MissingKeys: missing,
		}
	}
	return nil
}

func (a *PayUAdapter) fetchTxn(ctx context.Context, txnid string) (*payuTxnDetail, error) {
	resp, err := a.postCommand(ctx, "verify_payment", "verify_payment", map[string]string{
		"var1": txnid,
	})
	if err != nil {
		return nil, err
	}

	var out payuVerifyResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "payu", "unparseable verify response", err)
	}
	if out.Status != 1 {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "payu", "verify rejected",
			fmt.Errorf("payu: %s", out.Msg))
	}
	detail, ok := out.TransactionDetails[txnid]
	if !ok || strings.EqualFold(detail.Status, "not found") {
		return nil, domain.NewPaymentError(domain.CodePaymentNotFound, "payu",
			"transaction not found for "+txnid, nil)
	}
	return &detail, nil
}

// postCommand runs a postservice command. Command auth is
// sha512(key|command|var1|salt) alongside the form.
func (a *PayUAdapter) postCommand(ctx context.Context, command, op string, vars map[string]string) ([]byte, error) {
	form := map[string]string{
		"key":     a.merchantKey,
		"command": command,
		"hash":    sha512Hex(a.merchantKey + "|" + command + "|" + vars["var1"] + "|" + a.salt),
	}
	for k, v := range vars {
		form[k] = v
	}

	req := a.client.Request(ctx).SetFormData(form).SetQueryParam("form", "2")
	resp, err := a.client.Do(req, http.MethodPost, "/merchant/postservice", op)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, domain.NewPaymentError(domain.CodeGatewayError, "payu",
			fmt.Sprintf("%s rejected (http %d)", op, resp.StatusCode()), nil)
	}
	return resp.Body(), nil
}
