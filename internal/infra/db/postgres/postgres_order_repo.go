package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, tenant_id, amount, currency, state, payment_id, created_at, updated_at, failed_at, meta`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	if err := row.Scan(
		&o.ID, &o.TenantID, &o.Amount, &o.Currency, &o.State, &o.PaymentID,
		&o.CreatedAt, &o.UpdatedAt, &o.FailedAt, &o.Meta,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (
  id, tenant_id, amount, currency, state, payment_id, created_at, updated_at, failed_at, meta
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO UPDATE SET
  state=$5, payment_id=$6, updated_at=$8, failed_at=$9, meta=$10;`

	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.TenantID, o.Amount, o.Currency, o.State, o.PaymentID,
		o.CreatedAt, o.UpdatedAt, o.FailedAt, o.Meta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

// TransitionState applies from -> to guarded by the current state so two
// concurrent writers cannot both win. The caller validates the move against
// the lifecycle table first; this guard only defends against races.
func (r *orderRepo) TransitionState(
	ctx context.Context, tx repository.Tx, id string, from, to model.OrderState, paymentID *string, failedAt *time.Time,
) (bool, error) {
	const q = `
    UPDATE orders
       SET state = $3,
           payment_id = COALESCE($4, payment_id),
           failed_at = COALESCE($5, failed_at),
           updated_at = NOW()
     WHERE id = $1
       AND state = $2`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), paymentID, failedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
