package model

import "time"

type IdempotencyStatus string

const (
	// IdempotencyProcessing marks a record claimed by an in-flight request.
	IdempotencyProcessing IdempotencyStatus = "processing"
	// IdempotencyCompleted marks a stored outcome safe to replay.
	IdempotencyCompleted IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the outcome of one logical operation so retries
// with the same key return the original result instead of re-executing.
// Scope partitions keys per operation type (e.g. "payment.create") so the
// same client key can be reused across different operations.
type IdempotencyRecord struct {
	Key   string
	Scope string
	// Fingerprint is a digest of the request parameters; a key reuse with a
	// different fingerprint is a client bug and is rejected.
	Fingerprint string
	Status      IdempotencyStatus
	// Response is the serialized outcome; only set once Status is completed.
	Response  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its retention window at t.
func (r *IdempotencyRecord) Expired(t time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(t)
}
