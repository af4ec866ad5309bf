package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DBTxKey    contextKey = "db_tx"
	txScopeKey contextKey = "db_tx_scope"
)

// ErrNoTx is returned by writes that must run under a transaction opened by
// a TxRunner.
var ErrNoTx = errors.New("operation requires a transaction")

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx returns a context carrying tx. Repositories pick it up through
// their conn(ctx) helper.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return WithTxScope(context.WithValue(ctx, DBTxKey, tx))
}

// WithTxScope marks ctx as running inside a transaction without attaching a
// pgx.Tx. In-memory transaction runners use it so that InTx checks behave
// the same as against Postgres.
func WithTxScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, txScopeKey, true)
}

// InTx reports whether ctx belongs to a transaction opened by a runner.
func InTx(ctx context.Context) bool {
	in, _ := ctx.Value(txScopeKey).(bool)
	return in
}

// TxRunner runs a function inside a single database transaction. The
// transaction is committed when fn returns nil and rolled back otherwise.
type TxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTxRunner creates a runner. lockTimeout bounds every row-lock wait made
// inside the transaction; zero keeps the server default.
func NewTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, lockTimeout: lockTimeout}
}

// RunInTx executes fn in a transaction. A nested call joins the outer
// transaction. When the request carries a tenant connection the
// transaction is opened on it so the tenant search_path applies.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var tx pgx.Tx
	if c := ConnFromContext(ctx); c != nil {
		tx, err = c.Begin(ctx)
	} else {
		tx, err = r.pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return r.run(ctx, tx, fn)
}

// run drives an open transaction to commit or rollback. A panic in fn
// rolls back before it propagates.
func (r *TxRunner) run(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if stmt := lockTimeoutStatement(r.lockTimeout); stmt != "" {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func lockTimeoutStatement(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}
