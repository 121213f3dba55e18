package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxKey carries an open transaction through the request context so that
// repository calls join it instead of using the pool directly.
const TxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction placed by RunInTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// Runner implements transactional execution over a pgx pool. The transaction
// begins on the tenant-scoped connection when one is present in the context,
// so the tenant search_path applies inside it.
type Runner struct {
	pool *pgxpool.Pool
}

func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// InTx runs fn within a single transaction. Nested calls join the existing
// transaction.
func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	var tx pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		tx, err = conn.Begin(ctx)
	} else {
		tx, err = r.pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, TxKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InProviderTx runs fn within a transaction after taking an advisory lock on
// the provider's calendar. Concurrent writers racing on the same provider's
// time windows are serialized here; readers are unaffected.
func (r *Runner) InProviderTx(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	return r.InTx(ctx, func(ctx context.Context) error {
		tx := TxFromContext(ctx)
		key := TenantFromContext(ctx) + ":" + providerID.String()
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return fmt.Errorf("lock provider calendar: %w", err)
		}
		return fn(ctx)
	})
}
