package database

import (
	"context"
	"database/sql"
)

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// CreateResult inserts the result in a single transaction and returns the assigned id.
	// Nothing is visible to readers unless the commit succeeds.
	CreateResult(ctx context.Context, result *Result) (int64, error)
	// GetResults returns up to limit results ordered by id descending; limit <= 0 means all.
	GetResults(ctx context.Context, limit int) ([]*Result, error)
	CountResults(ctx context.Context) (int, error)
}
