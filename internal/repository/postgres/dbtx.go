package postgres

import (
	"context"
	"database/sql"
)

// DBTX is a common interface for *sqlx.DB and *sqlx.Tx
// so repositories run unchanged inside a rolled-back test transaction
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}
