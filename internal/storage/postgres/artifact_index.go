// Package postgres provides Postgres-backed persistence for the artifact index and job records.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ArtifactIndex writes one row per committed artifact.
type ArtifactIndex struct {
	pool  execCloser
	table string
}

var _ artifact.Indexer = (*ArtifactIndex)(nil)

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewArtifactIndex constructs an index over an existing pool.
func NewArtifactIndex(pool execCloser, table string) (*ArtifactIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "artifacts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArtifactIndex{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArtifactIndex) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// IndexArtifact inserts an artifact row. Re-indexing the same key is a no-op.
func (s *ArtifactIndex) IndexArtifact(ctx context.Context, entry artifact.IndexEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("artifact index is not configured")
	}
	if entry.Key == "" {
		return fmt.Errorf("artifact key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	artifact_key,
	artifact_uri,
	entity,
	category,
	format,
	sha256,
	size_bytes,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (artifact_key) DO NOTHING`, s.table)

	args := []any{
		entry.Key,
		entry.URI,
		entry.Entity,
		string(entry.Category),
		string(entry.Format),
		entry.SHA256,
		int64(entry.Bytes),
		entry.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}
