package postgres

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sqlx.DB and *sqlx.Tx the repositories use, so the
// same repository runs inside or outside a transaction
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
