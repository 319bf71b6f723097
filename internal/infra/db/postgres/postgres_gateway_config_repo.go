package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
)

var _ repository.GatewayConfigRepository = (*gatewayConfigRepo)(nil)

type gatewayConfigRepo struct{ pool *pgxpool.Pool }

func NewGatewayConfigRepo(pool *pgxpool.Pool) *gatewayConfigRepo {
	return &gatewayConfigRepo{pool: pool}
}

const gatewayConfigColumns = `id, tenant_id, provider, env, enabled, priority, fields, created_at, updated_at`

func scanGatewayConfig(row pgx.Row) (*model.GatewayConfig, error) {
	c := &model.GatewayConfig{}
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Provider, &c.Env, &c.Enabled, &c.Priority,
		&c.Fields, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *gatewayConfigRepo) Save(ctx context.Context, tx repository.Tx, c *model.GatewayConfig) error {
	const q = `
INSERT INTO gateway_configs (
  id, tenant_id, provider, env, enabled, priority, fields, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (tenant_id, provider, env) DO UPDATE SET
  enabled=$5, priority=$6, fields=$7, updated_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.TenantID, c.Provider, c.Env, c.Enabled, c.Priority,
		c.Fields, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *gatewayConfigRepo) Find(ctx context.Context, tx repository.Tx, tenantID string, provider model.Provider, env model.Environment) (*model.GatewayConfig, error) {
	const q = `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs WHERE tenant_id=$1 AND provider=$2 AND env=$3;`
	row, err := pickRow(ctx, r.pool, tx, q, tenantID, provider, env)
	if err != nil {
		return nil, err
	}
	return scanGatewayConfig(row)
}

func (r *gatewayConfigRepo) ListForTenant(ctx context.Context, tx repository.Tx, tenantID string, env model.Environment) ([]*model.GatewayConfig, error) {
	const q = `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs WHERE tenant_id=$1 AND env=$2 ORDER BY priority ASC, provider ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, tenantID, env)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.GatewayConfig
	for rows.Next() {
		c, err := scanGatewayConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *gatewayConfigRepo) TenantExists(ctx context.Context, tx repository.Tx, tenantID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM gateway_configs WHERE tenant_id=$1);`
	row, err := pickRow(ctx, r.pool, tx, q, tenantID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
