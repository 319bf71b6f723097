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

var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

const refundColumns = `id, payment_id, tenant_id, provider, env, amount, currency, provider_refund_id, status, reason, created_at, updated_at, completed_at, meta`

func scanRefund(row pgx.Row) (*model.Refund, error) {
	rf := &model.Refund{}
	if err := row.Scan(
		&rf.ID, &rf.PaymentID, &rf.TenantID, &rf.Provider, &rf.Env, &rf.Amount, &rf.Currency,
		&rf.ProviderRefundID, &rf.Status, &rf.Reason, &rf.CreatedAt, &rf.UpdatedAt,
		&rf.CompletedAt, &rf.Meta,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rf, nil
}

func (r *refundRepo) Save(ctx context.Context, tx repository.Tx, rf *model.Refund) error {
	const q = `
INSERT INTO refunds (
  id, payment_id, tenant_id, provider, env, amount, currency, provider_refund_id, status, reason, created_at, updated_at, completed_at, meta
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO UPDATE SET
  provider_refund_id=$8, status=$9, updated_at=$12, completed_at=$13, meta=$14;`

	_, err := execSQL(ctx, r.pool, tx, q,
		rf.ID, rf.PaymentID, rf.TenantID, rf.Provider, rf.Env, rf.Amount, rf.Currency,
		rf.ProviderRefundID, rf.Status, rf.Reason, rf.CreatedAt, rf.UpdatedAt,
		rf.CompletedAt, rf.Meta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Refund, error) {
	q := `SELECT ` + refundColumns + ` FROM refunds WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) FindByProviderRefundID(ctx context.Context, tx repository.Tx, provider model.Provider, providerRefundID string) (*model.Refund, error) {
	const q = `SELECT ` + refundColumns + ` FROM refunds WHERE provider=$1 AND provider_refund_id=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, provider, providerRefundID)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.Refund, error) {
	const q = `SELECT ` + refundColumns + ` FROM refunds WHERE payment_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, nil
}

func (r *refundRepo) SumReservedByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM refunds WHERE payment_id=$1 AND status IN ('pending','processing','completed');`
	return r.sumByPayment(ctx, tx, q, paymentID)
}

func (r *refundRepo) SumCompletedByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM refunds WHERE payment_id=$1 AND status='completed';`
	return r.sumByPayment(ctx, tx, q, paymentID)
}

func (r *refundRepo) sumByPayment(ctx context.Context, tx repository.Tx, q, paymentID string) (int64, error) {
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *refundRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.RefundStatus, providerRefundID *string, completedAt *time.Time) error {
	const q = `UPDATE refunds SET status=$2, provider_refund_id=COALESCE($3, provider_refund_id), completed_at=COALESCE($4, completed_at), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, providerRefundID, completedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
