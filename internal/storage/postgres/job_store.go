package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

const uniqueViolation = "23505"

type queryExecer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

const jobColumns = "id, harvester_id, entity, status, created_at, started_at, finished_at, " +
	"error_kind, error_message, artifacts"

// JobStore persists harvest job state in a Postgres table.
type JobStore struct {
	db    queryExecer
	table string
}

var _ harvest.JobStore = (*JobStore)(nil)

// NewJobStore constructs a JobStore over an existing pool.
func NewJobStore(db queryExecer, table string) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "harvest_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{db: db, table: table}, nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job harvest.Job) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, harvester_id, entity, status, created_at)
VALUES ($1, $2, $3, $4, $5)`, s.table)
	_, err := s.db.Exec(ctx, query, job.ID, job.HarvesterID, job.Entity, string(job.Status), job.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return harvest.ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob writes the job's status, timestamps, error and artifacts.
func (s *JobStore) UpdateJob(ctx context.Context, job harvest.Job) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2,
	started_at = $3,
	finished_at = $4,
	error_kind = $5,
	error_message = $6,
	artifacts = $7
WHERE id = $1`, s.table)
	var kind, message string
	if job.Error != nil {
		kind, message = string(job.Error.Kind), job.Error.Message
	}
	artifacts := job.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	tag, err := s.db.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.StartedAt,
		job.FinishedAt,
		kind,
		message,
		artifacts,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by id.
func (s *JobStore) GetJob(ctx context.Context, id string) (harvest.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, s.table)
	job, err := scanJob(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return harvest.Job{}, harvest.ErrJobNotFound
	}
	if err != nil {
		return harvest.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns the jobs for an entity, oldest first. An empty entity lists every job.
func (s *JobStore) ListJobs(ctx context.Context, entityName string) ([]harvest.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ($1 = '' OR entity = $1) ORDER BY created_at, id`,
		jobColumns, s.table)
	rows, err := s.db.Query(ctx, query, entityName)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []harvest.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (harvest.Job, error) {
	var (
		job        harvest.Job
		status     string
		createdAt  time.Time
		startedAt  *time.Time
		finishedAt *time.Time
		kind       string
		message    string
		artifacts  []string
	)
	if err := row.Scan(
		&job.ID,
		&job.HarvesterID,
		&job.Entity,
		&status,
		&createdAt,
		&startedAt,
		&finishedAt,
		&kind,
		&message,
		&artifacts,
	); err != nil {
		return harvest.Job{}, err
	}
	job.Status = harvest.Status(status)
	job.CreatedAt = createdAt
	job.StartedAt = startedAt
	job.FinishedAt = finishedAt
	if kind != "" {
		job.Error = &harvest.ErrorInfo{Kind: harvest.ErrorKind(kind), Message: message}
	}
	if len(artifacts) > 0 {
		job.Artifacts = artifacts
	}
	return job, nil
}
