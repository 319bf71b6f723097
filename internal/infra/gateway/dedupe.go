package gateway

import (
	"encoding/json"
	"net/url"
	"strings"

	"paybridge/internal/domain/model"
)

// DedupeKeyHint derives the same dedupe key the provider's adapter attaches
// to a verified event, using only cheap header or body inspection and no
// secret material. The webhook handler uses it to answer replays before any
// verification work happens; providers with nothing cheap to offer fall back
// to the body digest, which still matches byte-identical redeliveries.
func DedupeKeyHint(provider model.Provider, body []byte, headers map[string]string) string {
	switch provider {
	case model.ProviderRazorpay:
		if id := headerValue(headers, "X-Razorpay-Event-Id"); id != "" {
			return id
		}
	case model.ProviderCashfree:
		if id := headerValue(headers, "x-idempotency-key"); id != "" {
			return id
		}
	case model.ProviderPayU:
		if vals, err := url.ParseQuery(string(body)); err == nil {
			return vals.Get("mihpayid") + ":" + strings.ToLower(vals.Get("status"))
		}
	case model.ProviderPhonePe:
		if key := phonepeDedupeKey(body); key != "" {
			return key
		}
	case model.ProviderNoop:
		var payload struct {
			DedupeKey string `json:"dedupe_key"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.DedupeKey != "" {
			return payload.DedupeKey
		}
	}
	return bodyDigest(body)
}

func phonepeDedupeKey(body []byte) string {
	var envelope struct {
		Event   string `json:"event"`
		Type    string `json:"type"`
		Payload struct {
			MerchantOrderID  string `json:"merchantOrderId"`
			MerchantRefundID string `json:"merchantRefundId"`
			State            string `json:"state"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	event := envelope.Event
	if event == "" {
		event = envelope.Type
	}
	p := envelope.Payload
	if p.MerchantOrderID == "" && p.MerchantRefundID == "" {
		return ""
	}
	state := strings.ToLower(p.State)
	if strings.Contains(strings.ToLower(event), "refund") {
		return event + ":" + p.MerchantRefundID + ":" + state
	}
	return event + ":" + p.MerchantOrderID + ":" + state
}
