package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
)

var _ repository.WebhookRepository = (*webhookRepo)(nil)

type webhookRepo struct{ pool *pgxpool.Pool }

func NewWebhookRepo(pool *pgxpool.Pool) *webhookRepo {
	return &webhookRepo{pool: pool}
}

const webhookColumns = `id, tenant_id, provider, env, event_type, dedupe_key, raw_body, headers, payment_id, order_id, processed, processed_at, received_at`

func scanWebhook(row pgx.Row) (*model.WebhookRecord, error) {
	w := &model.WebhookRecord{}
	if err := row.Scan(
		&w.ID, &w.TenantID, &w.Provider, &w.Env, &w.EventType, &w.DedupeKey,
		&w.RawBody, &w.Headers, &w.PaymentID, &w.OrderID,
		&w.Processed, &w.ProcessedAt, &w.ReceivedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

func (r *webhookRepo) Insert(ctx context.Context, tx repository.Tx, w *model.WebhookRecord) error {
	const q = `
INSERT INTO webhooks (
  id, tenant_id, provider, env, event_type, dedupe_key, raw_body, headers, payment_id, order_id, processed, processed_at, received_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
);`

	_, err := execSQL(ctx, r.pool, tx, q,
		w.ID, w.TenantID, w.Provider, w.Env, w.EventType, w.DedupeKey,
		w.RawBody, w.Headers, w.PaymentID, w.OrderID,
		w.Processed, w.ProcessedAt, w.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookRepo) FindByDedupeKey(ctx context.Context, tx repository.Tx, provider model.Provider, dedupeKey string) (*model.WebhookRecord, error) {
	q := `SELECT ` + webhookColumns + ` FROM webhooks WHERE provider=$1 AND dedupe_key=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, dedupeKey)
	if err != nil {
		return nil, err
	}
	return scanWebhook(row)
}

func (r *webhookRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE webhooks SET processed=TRUE, processed_at=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string, limit int) ([]*model.WebhookRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + webhookColumns + ` FROM webhooks WHERE order_id=$1 ORDER BY received_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, orderID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WebhookRecord
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
