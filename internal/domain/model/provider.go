package model

import "strings"

type Provider string

const (
	ProviderRazorpay Provider = "razorpay"
	ProviderPayU     Provider = "payu"
	ProviderCashfree Provider = "cashfree"
	ProviderPhonePe  Provider = "phonepe"
	ProviderPaytm    Provider = "paytm"
	ProviderBilldesk Provider = "billdesk"
	ProviderCCAvenue Provider = "ccavenue"
	ProviderEasebuzz Provider = "easebuzz"
	// ProviderNoop is a loopback gateway used in tests and local dev.
	ProviderNoop Provider = "noop"
)

type Environment string

const (
	EnvTest Environment = "test"
	EnvLive Environment = "live"
)

// CapabilitySet describes what a provider can do. Routing consults this
// before attempting an operation so unsupported calls fail locally.
type CapabilitySet struct {
	Cards         bool
	UPI           bool
	Netbanking    bool
	Wallets       bool
	EMI           bool
	Refunds       bool
	PartialRefund bool
	Payouts       bool
	Tokenization  bool
	International bool
	Webhooks      bool
	// AutoCapture means the provider settles without an explicit capture
	// call; CapturePayment is rejected for these.
	AutoCapture bool
	Currencies  []string
}

var inr = []string{"INR"}

// capabilityTable is the static registry. Per-tenant configuration can only
// narrow what is listed here, never widen it.
var capabilityTable = map[Provider]CapabilitySet{
	ProviderRazorpay: {
		Cards: true, UPI: true, Netbanking: true, Wallets: true, EMI: true,
		Refunds: true, PartialRefund: true, Payouts: true, Tokenization: true,
		International: true, Webhooks: true,
		Currencies: []string{"INR", "USD", "EUR", "GBP", "SGD", "AED"},
	},
	ProviderPayU: {
		Cards: true, UPI: true, Netbanking: true, Wallets: true, EMI: true,
		Refunds: true, PartialRefund: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  inr,
	},
	ProviderCashfree: {
		Cards: true, UPI: true, Netbanking: true, Wallets: true,
		Refunds: true, PartialRefund: true, Payouts: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  inr,
	},
	ProviderPhonePe: {
		UPI: true, Cards: true, Wallets: true,
		Refunds: true, Webhooks: true, AutoCapture: true,
		Currencies: inr,
	},
	ProviderPaytm: {
		Cards: true, UPI: true, Netbanking: true, Wallets: true,
		Refunds: true, PartialRefund: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  inr,
	},
	ProviderBilldesk: {
		Cards: true, Netbanking: true, UPI: true,
		Refunds: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  inr,
	},
	ProviderCCAvenue: {
		Cards: true, Netbanking: true, Wallets: true, EMI: true,
		Refunds: true, International: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  []string{"INR", "USD"},
	},
	ProviderEasebuzz: {
		Cards: true, UPI: true, Netbanking: true,
		Refunds: true, Webhooks: true,
		AutoCapture: true,
		Currencies:  inr,
	},
	ProviderNoop: {
		Cards: true, UPI: true,
		Refunds: true, PartialRefund: true, Webhooks: true,
		Currencies: inr,
	},
}

// Capabilities returns the registered capability set for p. The second result
// is false for providers outside the registry.
func Capabilities(p Provider) (CapabilitySet, bool) {
	cs, ok := capabilityTable[p]
	return cs, ok
}

// requiredConfigKeys lists the fields each provider cannot run without. The
// config resolver validates against this table and the adapters re-check it
// at construction, so both sides reject the same incomplete configs.
var requiredConfigKeys = map[Provider][]string{
	ProviderRazorpay: {"key_id", "key_secret", "webhook_secret"},
	ProviderPayU:     {"merchant_key", "merchant_salt"},
	ProviderCashfree: {"app_id", "secret_key"},
	ProviderPhonePe:  {"client_id", "client_secret", "client_version", "webhook_username", "webhook_password"},
	ProviderPaytm:    {"merchant_id", "merchant_key"},
	ProviderBilldesk: {"merchant_id", "checksum_key"},
	ProviderCCAvenue: {"merchant_id", "access_code", "working_key"},
	ProviderEasebuzz: {"merchant_key", "merchant_salt"},
	ProviderNoop:     nil,
}

// RequiredConfigKeys returns the mandatory config fields for p.
func RequiredConfigKeys(p Provider) []string {
	return append([]string(nil), requiredConfigKeys[p]...)
}

// KnownProviders lists registered providers in stable preference order.
func KnownProviders() []Provider {
	return []Provider{
		ProviderRazorpay, ProviderPayU, ProviderCashfree, ProviderPhonePe,
		ProviderPaytm, ProviderBilldesk, ProviderCCAvenue, ProviderEasebuzz,
		ProviderNoop,
	}
}

// ParseProvider normalizes raw input to a registered Provider.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	_, ok := capabilityTable[p]
	return p, ok
}

func ParseEnvironment(s string) (Environment, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test", "sandbox", "uat":
		return EnvTest, true
	case "live", "prod", "production":
		return EnvLive, true
	}
	return "", false
}

// SupportsCurrency reports whether currency (ISO 4217) is accepted.
func (c CapabilitySet) SupportsCurrency(currency string) bool {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	for _, x := range c.Currencies {
		if x == cur {
			return true
		}
	}
	return false
}

// Methods lists supported checkout methods as stable strings.
func (c CapabilitySet) Methods() []string {
	var out []string
	if c.Cards {
		out = append(out, "card")
	}
	if c.UPI {
		out = append(out, "upi")
	}
	if c.Netbanking {
		out = append(out, "netbanking")
	}
	if c.Wallets {
		out = append(out, "wallet")
	}
	if c.EMI {
		out = append(out, "emi")
	}
	return out
}
