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

var _ repository.IdempotencyRepository = (*idempotencyRepo)(nil)

type idempotencyRepo struct{ pool *pgxpool.Pool }

func NewIdempotencyRepo(pool *pgxpool.Pool) *idempotencyRepo {
	return &idempotencyRepo{pool: pool}
}

const idempotencyColumns = `key, scope, fingerprint, status, response, created_at, updated_at, expires_at`

func scanIdempotency(row pgx.Row) (*model.IdempotencyRecord, error) {
	rec := &model.IdempotencyRecord{}
	if err := row.Scan(
		&rec.Key, &rec.Scope, &rec.Fingerprint, &rec.Status, &rec.Response,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}

// Claim inserts the processing record. On a (key, scope) collision the
// existing row is read back, under FOR UPDATE when running in a transaction,
// and returned with domain.ErrAlreadyExists so concurrent claimants serialize
// on the first writer's row.
func (r *idempotencyRepo) Claim(ctx context.Context, tx repository.Tx, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error) {
	const q = `
INSERT INTO idempotency_records (key, scope, fingerprint, status, response, created_at, updated_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.Key, rec.Scope, rec.Fingerprint, rec.Status, rec.Response,
		rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt)
	if err == nil {
		return rec, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		existing, ferr := r.Find(ctx, tx, rec.Key, rec.Scope)
		if ferr != nil {
			return nil, ferr
		}
		return existing, domain.ErrAlreadyExists
	}
	if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
		return nil, err
	}
	return nil, domain.ErrOperationFailed
}

func (r *idempotencyRepo) Find(ctx context.Context, tx repository.Tx, key, scope string) (*model.IdempotencyRecord, error) {
	q := `SELECT ` + idempotencyColumns + ` FROM idempotency_records WHERE key=$1 AND scope=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, key, scope)
	if err != nil {
		return nil, err
	}
	return scanIdempotency(row)
}

func (r *idempotencyRepo) Complete(ctx context.Context, tx repository.Tx, key, scope string, response []byte, expiresAt time.Time) error {
	const q = `UPDATE idempotency_records SET status=$3, response=$4, expires_at=$5, updated_at=NOW() WHERE key=$1 AND scope=$2;`
	_, err := execSQL(ctx, r.pool, tx, q, key, scope, model.IdempotencyCompleted, response, expiresAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// Release drops the record whatever its status. Callers invoke it for their
// own abandoned claim, for a stale claim being taken over, and for expired
// completed records, so the delete must not filter on status.
func (r *idempotencyRepo) Release(ctx context.Context, tx repository.Tx, key, scope string) error {
	const q = `DELETE FROM idempotency_records WHERE key=$1 AND scope=$2;`
	_, err := execSQL(ctx, r.pool, tx, q, key, scope)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *idempotencyRepo) DeleteExpired(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	const q = `DELETE FROM idempotency_records WHERE expires_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, before)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return 0, err
		default:
			return 0, domain.ErrOperationFailed
		}
	}
	return cmd.RowsAffected(), nil
}
