package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart  Stage = "job_start"
	StageJobDone   Stage = "job_done"
	StageJobError  Stage = "job_error"
	StageFetchDone Stage = "fetch_done"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is a single harvest milestone.
type Event struct {
	JobID       string        `json:"job_id"`
	HarvesterID string        `json:"harvester_id,omitempty"`
	Entity      string        `json:"entity,omitempty"`
	TS          time.Time     `json:"ts"`
	Stage       Stage         `json:"stage"`
	Site        string        `json:"site,omitempty"`
	URL         string        `json:"url,omitempty"`
	StatusClass StatusClass   `json:"status_class,omitempty"`
	Bytes       int64         `json:"bytes,omitempty"`
	Dur         time.Duration `json:"duration_ns,omitempty"`
	// Note carries the error kind and message for failures.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// Job identifies the harvest job a fetch belongs to.
type Job struct {
	ID          string
	HarvesterID string
	Entity      string
}

type jobKey struct{}

// WithJob attaches job to ctx so fetch events can be attributed to it.
func WithJob(ctx context.Context, job Job) context.Context {
	return context.WithValue(ctx, jobKey{}, job)
}

// JobFromContext returns the job attached by WithJob.
func JobFromContext(ctx context.Context) (Job, bool) {
	job, ok := ctx.Value(jobKey{}).(Job)
	return job, ok
}
