package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEntity is returned when an entity name normalizes to nothing.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrInvalidCategory is returned for unknown categories, or raw passed to Save.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrUnsupportedRecord is returned when a payload cannot be serialized.
	ErrUnsupportedRecord = errors.New("unsupported record type")
	// ErrVersionsExhausted means every suffix for the current second is taken.
	ErrVersionsExhausted = errors.New("artifact versions exhausted")
)

// WriteError reports a failure to persist an artifact.
type WriteError struct {
	Key string
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("artifact %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
