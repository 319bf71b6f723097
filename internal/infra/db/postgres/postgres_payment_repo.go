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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, tenant_id, provider, env, amount, currency, method, provider_payment_id, provider_order_id, status, created_at, updated_at, captured_at, failed_at, description, meta`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(
		&p.ID, &p.OrderID, &p.TenantID, &p.Provider, &p.Env, &p.Amount, &p.Currency, &p.Method,
		&p.ProviderPaymentID, &p.ProviderOrderID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		&p.CapturedAt, &p.FailedAt, &p.Description, &p.Meta,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, order_id, tenant_id, provider, env, amount, currency, method, provider_payment_id, provider_order_id, status, created_at, updated_at, captured_at, failed_at, description, meta
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (id) DO UPDATE SET
  provider_payment_id=$9, provider_order_id=$10, status=$11, updated_at=$13, captured_at=$14, failed_at=$15, meta=$17;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.OrderID, p.TenantID, p.Provider, p.Env, p.Amount, p.Currency, p.Method,
		p.ProviderPaymentID, p.ProviderOrderID, p.Status, p.CreatedAt, p.UpdatedAt,
		p.CapturedAt, p.FailedAt, p.Description, p.Meta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, provider model.Provider, providerPaymentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND provider_payment_id=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, orderID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) CapturedExistsForOrder(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payments WHERE order_id=$1 AND status IN ('captured','refunded','partially_refunded'));`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time) error {
	const q = `UPDATE payments SET status=$2, provider_payment_id=COALESCE($3, provider_payment_id), captured_at=COALESCE($4, captured_at), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, providerPaymentID, capturedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// UpdateStatusIfOpen atomically updates status only while the payment has not
// reached a terminal state. A failed transition stamps failed_at once.
func (r *paymentRepo) UpdateStatusIfOpen(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string, capturedAt *time.Time,
) (bool, error) {
	const q = `
    UPDATE payments
       SET status = $2,
           provider_payment_id = COALESCE($3, provider_payment_id),
           captured_at = COALESCE($4, captured_at),
           failed_at = CASE WHEN $2 IN ('failed','cancelled') THEN NOW() ELSE failed_at END,
           updated_at = NOW()
     WHERE id = $1
       AND status IN ('created','initiated','processing','authorized')`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), providerPaymentID, capturedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status IN ('created','initiated','processing','authorized') AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) SumCapturedByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE status IN ('captured','refunded','partially_refunded') AND captured_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}

	return sum, nil
}
