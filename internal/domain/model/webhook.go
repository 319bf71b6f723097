package model

import "time"

// WebhookRecord is the durable, append-only log of every webhook accepted for
// processing. The (provider, dedupe key) pair is unique in storage; the first
// insert wins and replays are answered from this record.
type WebhookRecord struct {
	ID        string // ULID, time-ordered for audit listing
	TenantID  string
	Provider  Provider
	Env       Environment
	EventType string
	// DedupeKey is the provider event ID when one exists, otherwise a
	// payload digest computed by the adapter.
	DedupeKey string
	// RawBody is stored before any processing so failures can be replayed.
	RawBody     []byte
	Headers     map[string]string
	PaymentID   string
	OrderID     string
	Processed   bool
	ProcessedAt *time.Time
	ReceivedAt  time.Time
}

// WebhookEvent is the normalized form an adapter extracts from a verified
// payload. Everything downstream of verification works from this.
type WebhookEvent struct {
	Provider          Provider
	EventType         string
	DedupeKey         string
	ProviderPaymentID string
	ProviderOrderID   string
	// OrderID is the merchant order reference when the payload carries one.
	OrderID  string
	Status   PaymentStatus
	Amount   int64
	Currency string
	// RefundID is set for refund events.
	ProviderRefundID string
	RefundStatus     RefundStatus
	OccurredAt       time.Time
	Raw              map[string]string
}
