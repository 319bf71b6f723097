//go:build !integration

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
)

const (
	payuTestKey  = "gtKFFx"
	payuTestSalt = "eCwWELxi"
)

func newPayUTestAdapter(t *testing.T, endpoint string) *PayUAdapter {
	t.Helper()
	fields := map[string]string{
		"merchant_key":  payuTestKey,
		"merchant_salt": payuTestSalt,
	}
	if endpoint != "" {
		fields["endpoint"] = endpoint
	}
	a, err := NewPayUAdapter(testConfig(model.ProviderPayU, fields), 5*time.Second, newTestLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestPayUCreatePayment(t *testing.T) {
	a := newPayUTestAdapter(t, "")
	res, err := a.CreatePayment(context.Background(), adapter.CreatePaymentParams{
		PaymentID:   "pay-1",
		OrderID:     "ord-1",
		Amount:      50000,
		Currency:    "INR",
		Email:       "payer@example.com",
		CustomerID:  "cust-1",
		Description: "two widgets",
		CallbackURL: "https://merchant.example.com/return",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != model.PaymentStatusInitiated {
		t.Errorf("status: got %q want initiated", res.Status)
	}
	if res.ProviderPaymentID != "pay-1" {
		t.Errorf("provider payment id: got %q want the txnid", res.ProviderPaymentID)
	}
	if res.Metadata["checkout_url"] != payuTestCheckout {
		t.Errorf("checkout url: got %q want %q", res.Metadata["checkout_url"], payuTestCheckout)
	}
	if res.Metadata["amount"] != "500.00" {
		t.Errorf("amount: got %q want 500.00", res.Metadata["amount"])
	}

	// The request hash chain is fixed; a drift here breaks live checkouts.
	seq := strings.Join([]string{
		payuTestKey, "pay-1", "500.00", "two widgets", "cust-1", "payer@example.com",
		"ord-1", "", "", "", "",
		"", "", "", "", "", "",
		payuTestSalt,
	}, "|")
	if res.Metadata["checkout_hash"] != sha512Hex(seq) {
		t.Errorf("checkout hash mismatch")
	}
}

func TestPayUCaptureNotSupported(t *testing.T) {
	a := newPayUTestAdapter(t, "")
	_, err := a.CapturePayment(context.Background(), "pay-1", 50000)
	if !domain.IsPaymentCode(err, domain.CodeCaptureNotSupported) {
		t.Fatalf("got %v want code %s", err, domain.CodeCaptureNotSupported)
	}
}

func TestPayUVerifyPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("command"); got != "verify_payment" {
			t.Errorf("command: got %q", got)
		}
		if got := r.FormValue("var1"); got != "pay-1" {
			t.Errorf("var1: got %q", got)
		}
		wantHash := sha512Hex(payuTestKey + "|verify_payment|pay-1|" + payuTestSalt)
		if got := r.FormValue("hash"); got != wantHash {
			t.Errorf("command hash mismatch")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":1,"msg":"1 out of 1 Transactions Fetched Successfully","transaction_details":{`+
			`"pay-1":{"mihpayid":"403993715521867772","txnid":"pay-1","status":"success","amt":"500.00",`+
			`"mode":"UPI","bank_ref_num":"UTR123"}}}`)
	}))
	defer srv.Close()

	a := newPayUTestAdapter(t, srv.URL)
	res, err := a.VerifyPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.PaymentStatusCaptured {
		t.Errorf("status: got %q want captured", res.Status)
	}
	if res.Amount != 50000 {
		t.Errorf("amount: got %d want 50000", res.Amount)
	}
	if res.Metadata["mihpayid"] != "403993715521867772" {
		t.Errorf("metadata: got %v", res.Metadata)
	}
}

func TestPayUVerifyPaymentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":1,"msg":"ok","transaction_details":{"pay-x":{"status":"Not Found"}}}`)
	}))
	defer srv.Close()

	a := newPayUTestAdapter(t, srv.URL)
	_, err := a.VerifyPayment(context.Background(), "pay-x")
	if !domain.IsPaymentCode(err, domain.CodePaymentNotFound) {
		t.Fatalf("got %v want code %s", err, domain.CodePaymentNotFound)
	}
}

func TestPayUCreateRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.FormValue("command") {
		case "verify_payment":
			fmt.Fprint(w, `{"status":1,"msg":"ok","transaction_details":{`+
				`"pay-1":{"mihpayid":"403993715521867772","txnid":"pay-1","status":"success","amt":"500.00"}}}`)
		case "cancel_refund_transaction":
			if got := r.FormValue("var1"); got != "403993715521867772" {
				t.Errorf("refund var1: got %q want the mihpayid", got)
			}
			if got := r.FormValue("var3"); got != "100.00" {
				t.Errorf("refund var3: got %q want 100.00", got)
			}
			fmt.Fprint(w, `{"status":1,"msg":"Refund Request Queued","request_id":"17438"}`)
		default:
			t.Errorf("unexpected command %q", r.FormValue("command"))
		}
	}))
	defer srv.Close()

	a := newPayUTestAdapter(t, srv.URL)
	res, err := a.CreateRefund(context.Background(), "pay-1", 10000, map[string]string{"refund_id": "rf-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderRefundID != "17438" {
		t.Errorf("provider refund id: got %q want 17438", res.ProviderRefundID)
	}
	if res.Status != model.RefundStatusPending {
		t.Errorf("status: got %q want pending", res.Status)
	}
}

func TestPayURefundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":1,"msg":"ok","transaction_details":{`+
			`"403993715521867772":{"17438":{"action":"refund","amt":"100.00","request_id":"17438","status":"SUCCESS"}}}}`)
	}))
	defer srv.Close()

	a := newPayUTestAdapter(t, srv.URL)
	res, err := a.RefundStatus(context.Background(), "17438")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.RefundStatusCompleted {
		t.Errorf("status: got %q want completed", res.Status)
	}
	if res.Amount != 10000 {
		t.Errorf("amount: got %d want 10000", res.Amount)
	}
}

func payuWebhookBody(fields map[string]string) []byte {
	seq := strings.Join([]string{
		payuTestSalt, fields["status"],
		"", "", "", "", "",
		fields["udf5"], fields["udf4"], fields["udf3"], fields["udf2"], fields["udf1"],
		fields["email"], fields["firstname"], fields["productinfo"],
		fields["amount"], fields["txnid"], payuTestKey,
	}, "|")
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("hash", sha512Hex(seq))
	return []byte(form.Encode())
}

func TestPayUVerifyWebhook(t *testing.T) {
	a := newPayUTestAdapter(t, "")
	fields := map[string]string{
		"status":       "success",
		"txnid":        "pay-1",
		"amount":       "500.00",
		"productinfo":  "two widgets",
		"firstname":    "cust-1",
		"email":        "payer@example.com",
		"udf1":         "ord-1",
		"mihpayid":     "403993715521867772",
		"mode":         "UPI",
		"bank_ref_num": "UTR123",
	}

	t.Run("valid reverse hash normalizes the event", func(t *testing.T) {
		v := a.VerifyWebhook(context.Background(), payuWebhookBody(fields), nil)
		if !v.Verified {
			t.Fatalf("rejected: reason=%s err=%v", v.Reason, v.Err)
		}
		ev := v.Event
		if ev.Status != model.PaymentStatusCaptured {
			t.Errorf("status: got %q want captured", ev.Status)
		}
		if ev.ProviderPaymentID != "pay-1" || ev.OrderID != "ord-1" {
			t.Errorf("ids: got %s/%s", ev.ProviderPaymentID, ev.OrderID)
		}
		if ev.Amount != 50000 {
			t.Errorf("amount: got %d want 50000", ev.Amount)
		}
		if ev.DedupeKey != "403993715521867772:success" {
			t.Errorf("dedupe key: got %q", ev.DedupeKey)
		}
		if ev.Raw["mihpayid"] != "403993715521867772" {
			t.Errorf("raw: got %v", ev.Raw)
		}
	})

	t.Run("tampered amount fails the hash", func(t *testing.T) {
		body := payuWebhookBody(fields)
		tampered := []byte(strings.Replace(string(body), "amount=500.00", "amount=1.00", 1))
		v := a.VerifyWebhook(context.Background(), tampered, nil)
		if v.Verified || v.Reason != adapter.ReasonSignatureInvalid {
			t.Errorf("got verified=%v reason=%q", v.Verified, v.Reason)
		}
	})

	t.Run("missing hash", func(t *testing.T) {
		form := url.Values{}
		form.Set("status", "success")
		form.Set("txnid", "pay-1")
		v := a.VerifyWebhook(context.Background(), []byte(form.Encode()), nil)
		if v.Verified || v.Reason != adapter.ReasonMissingSignature {
			t.Errorf("got verified=%v reason=%q", v.Verified, v.Reason)
		}
	})

	t.Run("unparseable body", func(t *testing.T) {
		v := a.VerifyWebhook(context.Background(), []byte("%zz=broken"), nil)
		if v.Verified || v.Reason != adapter.ReasonMalformedPayload {
			t.Errorf("got verified=%v reason=%q", v.Verified, v.Reason)
		}
	})

	t.Run("failure status maps to failed", func(t *testing.T) {
		failed := map[string]string{}
		for k, v := range fields {
			failed[k] = v
		}
		failed["status"] = "failure"
		failed["error_code"] = "E501"
		v := a.VerifyWebhook(context.Background(), payuWebhookBody(failed), nil)
		if !v.Verified {
			t.Fatalf("rejected: reason=%s", v.Reason)
		}
		if v.Event.Status != model.PaymentStatusFailed {
			t.Errorf("status: got %q want failed", v.Event.Status)
		}
		if v.Event.Raw["failure_code"] != "E501" {
			t.Errorf("raw: got %v", v.Event.Raw)
		}
	})
}
