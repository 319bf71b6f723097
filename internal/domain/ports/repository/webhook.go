package repository

import (
	"context"
	"time"

	"paybridge/internal/domain/model"
)

type WebhookRepository interface {
	// Insert appends the record; a (provider, dedupe_key) collision returns
	// domain.ErrAlreadyExists so the caller can answer the replay.
	Insert(ctx context.Context, qx Tx, w *model.WebhookRecord) error
	FindByDedupeKey(ctx context.Context, qx Tx, provider model.Provider, dedupeKey string) (*model.WebhookRecord, error)
	MarkProcessed(ctx context.Context, qx Tx, id string, at time.Time) error
	ListByOrder(ctx context.Context, qx Tx, orderID string, limit int) ([]*model.WebhookRecord, error)
}
