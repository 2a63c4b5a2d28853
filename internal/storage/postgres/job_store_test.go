package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

func newMockJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestJobStoreCreateJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	job := harvest.Job{ID: "job-1", HarvesterID: "google_news", Entity: "RiverChain", Status: harvest.StatusPending, CreatedAt: created}

	mock.ExpectExec("INSERT INTO harvest_jobs").
		WithArgs("job-1", "google_news", "RiverChain", "pending", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO harvest_jobs").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.ErrorIs(t, store.CreateJob(context.Background(), job), harvest.ErrJobExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreUpdateJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	started := time.Date(2024, 3, 15, 10, 30, 1, 0, time.UTC)
	finished := started.Add(time.Second)
	job := harvest.Job{
		ID:         "job-1",
		Status:     harvest.StatusFailed,
		StartedAt:  &started,
		FinishedAt: &finished,
		Error:      &harvest.ErrorInfo{Kind: harvest.KindTimeout, Message: "deadline exceeded"},
	}

	mock.ExpectExec("UPDATE harvest_jobs").
		WithArgs("job-1", "failed", &started, &finished, "timeout", "deadline exceeded", []string{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE harvest_jobs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE harvest_jobs").
		WillReturnError(errors.New("boom"))

	require.NoError(t, store.UpdateJob(context.Background(), job))
	require.ErrorIs(t, store.UpdateJob(context.Background(), job), harvest.ErrJobNotFound)
	require.ErrorContains(t, store.UpdateJob(context.Background(), job), "update job")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	started := created.Add(time.Second)
	finished := started.Add(time.Second)
	columns := []string{
		"id", "harvester_id", "entity", "status", "created_at", "started_at", "finished_at",
		"error_kind", "error_message", "artifacts",
	}

	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"job-1", "google_news", "RiverChain", "succeeded", created, &started, &finished,
			"", "", []string{"companies/riverchain/news/20240315_103000.json"},
		))
	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusSucceeded, job.Status)
	assert.Equal(t, created, job.CreatedAt)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, finished, *job.FinishedAt)
	assert.Nil(t, job.Error)
	assert.Equal(t, []string{"companies/riverchain/news/20240315_103000.json"}, job.Artifacts)

	_, err = store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, harvest.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreListJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	columns := []string{
		"id", "harvester_id", "entity", "status", "created_at", "started_at", "finished_at",
		"error_kind", "error_message", "artifacts",
	}
	var none *time.Time

	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs").
		WithArgs("RiverChain").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("job-1", "google_news", "RiverChain", "pending", created, none, none, "", "", []string{}).
			AddRow("job-2", "sec_edgar", "RiverChain", "failed", created.Add(time.Second), none, none,
				"timeout", "deadline exceeded", []string{}))
	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs").
		WithArgs("").
		WillReturnError(errors.New("boom"))

	jobs, err := store.ListJobs(context.Background(), "RiverChain")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Nil(t, jobs[0].Artifacts)
	require.NotNil(t, jobs[1].Error)
	assert.Equal(t, harvest.KindTimeout, jobs[1].Error.Kind)

	_, err = store.ListJobs(context.Background(), "")
	require.ErrorContains(t, err, "list jobs")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewJobStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewJobStore(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewJobStore(mock, "jobs; drop")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("denied"))
	require.ErrorContains(t, EnsureSchema(context.Background(), mock), "apply schema")
	require.NoError(t, mock.ExpectationsWereMet())
}
