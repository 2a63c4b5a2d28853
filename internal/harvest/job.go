package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal transition.
// Pending jobs may fail directly when their harvester cannot be resolved.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed
	default:
		return false
	}
}

// Job is one harvester run for one entity.
type Job struct {
	ID          string     `json:"id"`
	HarvesterID string     `json:"harvester_id"`
	Entity      string     `json:"entity"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
	Artifacts   []string   `json:"artifacts,omitempty"`
}

// transition moves the job to status, stamping timestamps.
func (j *Job) transition(to Status, at time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	ts := at
	switch {
	case to == StatusRunning:
		j.StartedAt = &ts
	case to.Terminal():
		j.FinishedAt = &ts
	}
	return nil
}

// Metadata is stamped onto successful results.
type Metadata struct {
	HarvesterID string        `json:"harvester_id"`
	Duration    time.Duration `json:"duration_ns"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Result is the outcome of one job. Exactly one of Record and Error is set.
type Result struct {
	JobID       string            `json:"job_id"`
	HarvesterID string            `json:"harvester_id"`
	Entity      string            `json:"entity"`
	Category    string            `json:"category,omitempty"`
	Status      Status            `json:"status"`
	Record      artifact.Document `json:"record,omitempty"`
	Artifacts   []string          `json:"artifacts,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
	Metadata    *Metadata         `json:"metadata,omitempty"`
}

// JobStore keeps job records for status queries.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
}
