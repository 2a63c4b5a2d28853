package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the default artifacts and harvest_jobs tables.
//
//go:embed schema.sql
var Schema string

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies Schema. Only the default table names are created.
func EnsureSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
