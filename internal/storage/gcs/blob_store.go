// Package gcs provides a storage backend on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	blob "github.com/JakeFAU/entity-harvester/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every key, e.g. "harvester".
	Prefix string `mapstructure:"prefix"`
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ blob.Backend = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

// Create uploads data only if no object exists under key and returns a gs:// URI.
// GCS finalizes an object on Close, so readers never observe a partial upload.
func (s *BlobStore) Create(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	cleaned, err := blob.CleanKey(key)
	if err != nil {
		return "", err
	}
	cleaned = s.object(cleaned)
	obj := s.client.Bucket(s.bucket).Object(cleaned).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", mapWriteErr(err), closeErr)
		}
		return "", fmt.Errorf("write object: %w", mapWriteErr(err))
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", mapWriteErr(err))
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, cleaned), nil
}

// Read downloads the object stored under key.
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	cleaned, err := blob.CleanKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.object(cleaned)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("read %s: %w", cleaned, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}
	defer func() {
		_ = reader.Close() //nolint:errcheck // read side
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// List returns the sorted base names of objects directly under dir.
func (s *BlobStore) List(ctx context.Context, dir string) ([]string, error) {
	cleaned, err := blob.CleanDir(dir)
	if err != nil {
		return nil, err
	}
	query := &storage.Query{Delimiter: "/"}
	if full := s.object(cleaned); full != "" {
		query.Prefix = full + "/"
	}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("select attrs: %w", err)
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		if attrs.Name == "" {
			continue
		}
		names = append(names, path.Base(attrs.Name))
	}
	sort.Strings(names)
	return names, nil
}

func (s *BlobStore) object(key string) string {
	if s.prefix == "" {
		return key
	}
	if key == "" {
		return s.prefix
	}
	return path.Join(s.prefix, key)
}

func mapWriteErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return blob.ErrExists
	}
	return err
}
