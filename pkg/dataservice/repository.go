package dataservice

import (
	"context"
	"database/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting list methods
// run standalone or as part of GetPatient360's single read-only
// transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
