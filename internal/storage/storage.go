// Package storage defines the key/blob capability artifacts are written to.
// Implementations live in the local, memory and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Sentinel errors shared by every backend.
var (
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned by Read when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid object key")
)

// Backend stores immutable objects under slash-separated keys.
type Backend interface {
	// Create commits data under key atomically and never replaces an existing
	// object; it returns ErrExists instead. The returned URI locates the object.
	Create(ctx context.Context, key string, contentType string, data []byte) (string, error)
	// Read returns the object stored under key or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns the sorted base names of objects directly under dir.
	// A missing dir yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)
}

// CleanKey validates key and returns its canonical form.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// CleanDir is CleanKey for directory prefixes; the empty dir is the root.
func CleanDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", nil
	}
	return CleanKey(dir)
}
