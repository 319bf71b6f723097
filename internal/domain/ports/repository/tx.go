package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle threaded through repository calls. Use
// cases never inspect it; repositories type-assert it back to the concrete
// handle of their backend.
type Tx interface{}

// NoTX selects the non-transactional path. Every repository method accepts it.
var NoTX Tx

// TransactionManager runs fn with a transaction handle that repository calls
// share. A capture that writes the payment, its order and the webhook record
// commits or rolls back as one unit; reads inside the transaction can lock
// rows (SELECT ... FOR UPDATE) because the repositories detect the handle.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByID(ctx, tx, id) // locked until commit
//		...
//		return err
//	})
//
// fn returning an error rolls back; a nil return commits. The concrete type
// behind Tx belongs to the storage layer (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
