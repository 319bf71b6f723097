package repository

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
)

type IdempotencyRepository interface {
	// Claim inserts a processing record for (key, scope). When a record
	// already exists it is returned with domain.ErrAlreadyExists; inside a
	// transaction the existing row is read under FOR UPDATE so concurrent
	// claimants serialize.
	Claim(ctx context.Context, qx Tx, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error)
	Find(ctx context.Context, qx Tx, key, scope string) (*model.IdempotencyRecord, error)
	// Complete stores the serialized outcome and flips the record to
	// completed.
	Complete(ctx context.Context, qx Tx, key, scope string, response []byte, expiresAt time.Time) error
	// Release removes the record regardless of status: an abandoned claim,
	// a stale claim being taken over, or an expired completed record. A
	// later retry can then execute again.
	Release(ctx context.Context, qx Tx, key, scope string) error
	DeleteExpired(ctx context.Context, qx Tx, before time.Time) (int64, error)
}
