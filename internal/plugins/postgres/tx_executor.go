package postgres

import (
	"context"
	"database/sql"

	"github.com/safeapps-io/money-back/internal/core/services"
)

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// GetExecutor returns the transaction carried by ctx when a TxManager
// opened one, otherwise the bare pool.
func GetExecutor(ctx context.Context, db *sql.DB) execer {
	if tx, ok := services.TxFromContext(ctx); ok {
		return tx
	}
	return db
}
