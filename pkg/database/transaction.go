package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type contextKey string

const (
	txKey       contextKey = "database-tx"
	txStatusKey contextKey = "database-tx-status"
)

type txStatus struct {
	done bool
}

type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	status *txStatus
	// owner is true for the call that opened the transaction. Nested GetTx
	// calls share the transaction but their Commit/Rollback are no-ops.
	owner bool
}

// GetTx returns the transaction stored on the context, or opens a new one and
// stores it. Only the outermost caller commits or rolls back.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(*sqlx.Tx); ok {
		status, _ := ctx.Value(txStatusKey).(*txStatus)
		return ctx, &transaction{Tx: existing, logger: logger, status: status, owner: false}, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return ctx, nil, err
	}

	status := &txStatus{}
	ctx = context.WithValue(ctx, txKey, sqlxTx)
	ctx = context.WithValue(ctx, txStatusKey, status)
	return ctx, &transaction{Tx: sqlxTx, logger: logger, status: status, owner: true}, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if !t.owner || (t.status != nil && t.status.done) {
		return nil
	}
	if t.status != nil {
		t.status.done = true
	}
	return t.Tx.Commit()
}

func (t *transaction) Rollback(ctx context.Context) error {
	if !t.owner || (t.status != nil && t.status.done) {
		return nil
	}
	if t.status != nil {
		t.status.done = true
	}
	if err := t.Tx.Rollback(); err != nil && err != sql.ErrTxDone {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to rollback transaction")
		return err
	}
	return nil
}
