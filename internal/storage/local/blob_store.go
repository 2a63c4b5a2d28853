// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/storage"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes immutable objects below a base directory.
type BlobStore struct {
	baseDir      string
	logger       *zap.Logger
	syncDir      func(dir string) error
	syncFailures atomic.Int64
}

// Option configures a BlobStore.
type Option func(*BlobStore)

// WithLogger sets the logger used for warnings after a committed write.
func WithLogger(logger *zap.Logger) Option {
	return func(s *BlobStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var _ storage.Backend = (*BlobStore)(nil)

// New creates a new local filesystem-backed blob store, creating BaseDir when missing.
func New(cfg Config, opts ...Option) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(baseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("close write probe: %w", err)
	}
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}

	s := &BlobStore{baseDir: baseDir, logger: zap.NewNop(), syncDir: syncDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SyncFailures reports how many committed objects could not have their
// directory entry synced.
func (s *BlobStore) SyncFailures() int64 {
	return s.syncFailures.Load()
}

// BaseDir returns the absolute root directory.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// Create writes data to a synced temporary file beside the target and links
// it into place, so the object appears complete or not at all. An existing
// target yields storage.ErrExists. Once linked the object is visible, so a
// failed directory sync is logged and counted rather than returned.
func (s *BlobStore) Create(ctx context.Context, key string, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmpName, err := writeTemp(dir, data)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = os.Remove(tmpName) //nolint:errcheck // temp file is gone after a successful link fallback
	}()

	if err := commit(tmpName, fullPath); err != nil {
		return "", err
	}
	if err := s.syncDir(dir); err != nil {
		s.syncFailures.Add(1)
		s.logger.Warn("object committed but directory sync failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return "file://" + fullPath, nil
}

// Read returns the object stored under key.
func (s *BlobStore) Read(_ context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is validated to stay inside baseDir.
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// List returns the sorted names of regular files directly under dir.
// Hidden files, including in-flight temporaries, are skipped.
func (s *BlobStore) List(_ context.Context, dir string) ([]string, error) {
	cleaned, err := storage.CleanDir(dir)
	if err != nil {
		return nil, err
	}
	fullDir := s.baseDir
	if cleaned != "" {
		if fullDir, err = s.resolve(cleaned); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(fullDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *BlobStore) resolve(key string) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", storage.ErrInvalidKey)
	}
	return fullPath, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	fail := func(step string, err error) (string, error) {
		_ = tmp.Close()      //nolint:errcheck // already failing
		_ = os.Remove(name) //nolint:errcheck // already failing
		return "", fmt.Errorf("%s: %w", step, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write temp file", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail("chmod temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close temp file", err)
	}
	return name, nil
}

// commit links tmp to target. Filesystems without hard links fall back to a
// rename guarded by an existence check.
func commit(tmp, target string) error {
	err := os.Link(tmp, target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("commit %s: %w", filepath.Base(target), storage.ErrExists)
	}
	if _, statErr := os.Lstat(target); statErr == nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(target), storage.ErrExists)
	}
	if renameErr := os.Rename(tmp, target); renameErr != nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(target), errors.Join(err, renameErr))
	}
	return nil
}

func syncDir(dir string) error {
	// #nosec G304 -- dir is derived from a validated object path.
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory for sync: %w", err)
	}
	defer func() {
		_ = d.Close() //nolint:errcheck // read-only handle
	}()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
