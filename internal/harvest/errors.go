package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/fetcher"
)

var (
	// ErrUnknownHarvester is reported when a requested id is not registered.
	ErrUnknownHarvester = errors.New("unknown harvester")
	// ErrJobAbandoned is returned by a job's Saver once the job has timed out or been canceled.
	ErrJobAbandoned = errors.New("job abandoned")
	// ErrInvalidTransition is returned for illegal job status changes.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrJobNotFound is returned by a JobStore for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned by a JobStore when a job id is reused.
	ErrJobExists = errors.New("job already exists")
)

// ErrorKind classifies a failed job.
type ErrorKind string

// Error kinds attached to failed results.
const (
	KindTransientFetch   ErrorKind = "transient_fetch"
	KindStoreWrite       ErrorKind = "store_write"
	KindUnknownHarvester ErrorKind = "unknown_harvester"
	KindTimeout          ErrorKind = "timeout"
	KindCanceled         ErrorKind = "canceled"
	KindPanic            ErrorKind = "panic"
	KindHarvester        ErrorKind = "harvester"
)

// ErrorInfo is the structured error payload of a failed job.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// PanicError wraps a value recovered from a harvester panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("harvester panicked: %v", e.Value)
}

// classify maps err to the result taxonomy. Order matters: a store failure
// caused by a deadline is still a store failure.
func classify(err error) ErrorKind {
	var (
		writeErr *artifact.WriteError
		panicErr *PanicError
	)
	switch {
	case errors.Is(err, ErrUnknownHarvester):
		return KindUnknownHarvester
	case errors.As(err, &panicErr):
		return KindPanic
	case errors.As(err, &writeErr):
		return KindStoreWrite
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrJobAbandoned):
		return KindCanceled
	case fetcher.IsTransient(err):
		return KindTransientFetch
	default:
		return KindHarvester
	}
}

func newErrorInfo(err error) *ErrorInfo {
	return &ErrorInfo{Kind: classify(err), Message: err.Error()}
}
