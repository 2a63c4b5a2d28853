// Package artifact persists harvested records as versioned, immutable artifacts.
//
// Records live under companies/<entity>/<category>/<YYYYMMDD_HHMMSS>.<ext>; raw
// captures live under raw/. Versions sort lexicographically in creation order.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/metrics"
	"github.com/JakeFAU/entity-harvester/internal/storage"
)

const (
	companiesDir  = "companies"
	rawDir        = "raw"
	versionLayout = "20060102_150405"
	maxSuffix     = 99
)

// Clock supplies the time used to version artifacts.
type Clock interface {
	Now() time.Time
}

// Hasher digests committed artifact bytes for the index.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IndexEntry describes a committed artifact.
type IndexEntry struct {
	Key       string
	URI       string
	Entity    string
	Category  entity.Category
	Format    Format
	SHA256    string
	Bytes     int
	CreatedAt time.Time
}

// Indexer records committed artifacts in a secondary catalog.
type Indexer interface {
	IndexArtifact(ctx context.Context, entry IndexEntry) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the version clock.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIndexer records every committed artifact with indexer.
func WithIndexer(indexer Indexer, hasher Hasher) Option {
	return func(s *Store) {
		s.indexer = indexer
		s.hasher = hasher
	}
}

// Store is the versioned artifact store. It is safe for concurrent use.
type Store struct {
	backend storage.Backend
	clock   Clock
	logger  *zap.Logger
	indexer Indexer
	hasher  Hasher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Store over backend.
func New(backend storage.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	s := &Store{
		backend: backend,
		clock:   systemClock{},
		logger:  zap.NewNop(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save writes rec as a new version of entityName's category and returns its ID.
func (s *Store) Save(ctx context.Context, entityName string, category entity.Category, rec Record) (string, error) {
	key := entity.Normalize(entityName)
	if key == "" {
		return "", fmt.Errorf("save %q: %w", entityName, ErrInvalidEntity)
	}
	if !category.Valid() || category == entity.CategoryRaw {
		return "", fmt.Errorf("save %q: %w: %q", entityName, ErrInvalidCategory, category)
	}
	if rec == nil {
		return "", fmt.Errorf("save %q: %w: nil record", entityName, ErrUnsupportedRecord)
	}
	data, err := rec.Encode()
	if err != nil {
		return "", &WriteError{Op: "encode", Err: err}
	}
	dir := path.Join(companiesDir, key, string(category))
	return s.commit(ctx, dir, "", data, rec.Format(), key, category)
}

// SaveRaw stores an unprocessed capture under raw/<source>[_<tag>]_<version>.<ext>.
// Strings are stored as txt, byte slices as bin, documents as json, and tables as csv.
func (s *Store) SaveRaw(ctx context.Context, source string, data any, tag string) (string, error) {
	prefix := rawToken(source)
	if prefix == "" {
		return "", fmt.Errorf("save raw: source is required")
	}
	if t := rawToken(tag); t != "" {
		prefix += "_" + t
	}
	encoded, format, err := encodeRaw(data)
	if err != nil {
		return "", &WriteError{Op: "encode", Err: err}
	}
	return s.commit(ctx, rawDir, prefix+"_", encoded, format, rawToken(tag), entity.CategoryRaw)
}

// commit allocates the first free version name in dir and creates it. The
// sequence is serialized per dir; the backend's no-clobber create covers
// writers outside this process.
func (s *Store) commit(
	ctx context.Context,
	dir, prefix string,
	data []byte,
	format Format,
	entityKey string,
	category entity.Category,
) (string, error) {
	lock := s.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().UTC()
	existing, err := s.backend.List(ctx, dir)
	if err != nil {
		return "", &WriteError{Key: dir, Op: "list", Err: err}
	}
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[strings.TrimSuffix(name, path.Ext(name))] = struct{}{}
	}

	version := now.Format(versionLayout)
	for i := 0; i <= maxSuffix; i++ {
		stem := prefix + version
		if i > 0 {
			stem = fmt.Sprintf("%s%s_%02d", prefix, version, i)
		}
		if _, ok := taken[stem]; ok {
			continue
		}
		key := path.Join(dir, stem+"."+string(format))
		uri, err := s.backend.Create(ctx, key, format.ContentType(), data)
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return "", &WriteError{Key: key, Op: "create", Err: err}
		}
		metrics.ObserveArtifactWrite(string(category), string(format))
		s.logger.Debug("artifact saved",
			zap.String("key", key),
			zap.String("uri", uri),
			zap.Int("bytes", len(data)),
		)
		s.index(ctx, IndexEntry{
			Key:       key,
			URI:       uri,
			Entity:    entityKey,
			Category:  category,
			Format:    format,
			Bytes:     len(data),
			CreatedAt: now,
		}, data)
		return key, nil
	}
	return "", &WriteError{Key: path.Join(dir, prefix+version), Op: "create", Err: ErrVersionsExhausted}
}

func (s *Store) index(ctx context.Context, entry IndexEntry, data []byte) {
	if s.indexer == nil {
		return
	}
	if s.hasher != nil {
		digest, err := s.hasher.Hash(data)
		if err != nil {
			s.logger.Warn("hash artifact failed", zap.String("key", entry.Key), zap.Error(err))
		}
		entry.SHA256 = digest
	}
	if err := s.indexer.IndexArtifact(ctx, entry); err != nil {
		metrics.ObserveIndexFailure()
		s.logger.Warn("index artifact failed", zap.String("key", entry.Key), zap.Error(err))
	}
}

// Load returns the stored artifacts for entityName in chronological order,
// grouped by category. An empty category loads every entity category. With
// latestOnly only the newest readable version per category is returned.
func (s *Store) Load(
	ctx context.Context,
	entityName string,
	category entity.Category,
	latestOnly bool,
) ([]Artifact, error) {
	key := entity.Normalize(entityName)
	if key == "" {
		return nil, nil
	}
	categories := entity.EntityCategories()
	if category != "" {
		if !category.Valid() || category == entity.CategoryRaw {
			return nil, fmt.Errorf("load %q: %w: %q", entityName, ErrInvalidCategory, category)
		}
		categories = []entity.Category{category}
	}

	var out []Artifact
	for _, cat := range categories {
		found, err := s.loadCategory(ctx, key, cat, latestOnly)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (s *Store) loadCategory(ctx context.Context, key string, category entity.Category, latestOnly bool) ([]Artifact, error) {
	dir := path.Join(companiesDir, key, string(category))
	names, err := s.backend.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(names)

	var out []Artifact
	for i := range names {
		name := names[i]
		if latestOnly {
			name = names[len(names)-1-i]
		}
		art, ok, err := s.read(ctx, dir, name, key, category)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, art)
		if latestOnly {
			break
		}
	}
	return out, nil
}

func (s *Store) read(ctx context.Context, dir, name, key string, category entity.Category) (Artifact, bool, error) {
	id := path.Join(dir, name)
	data, err := s.backend.Read(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("read %s: %w", id, err)
	}
	rec, version, err := decode(name, data)
	if err != nil {
		metrics.ObserveArtifactSkipped(string(category))
		s.logger.Warn("skipping malformed artifact", zap.String("key", id), zap.Error(err))
		return Artifact{}, false, nil
	}
	return Artifact{
		ID:       id,
		Entity:   key,
		Category: category,
		Version:  version,
		Format:   rec.Format(),
		Record:   rec,
	}, true, nil
}

func (s *Store) lockFor(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[dir]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[dir] = lock
	}
	return lock
}

// rawToken reduces s to a file-name-safe token.
func rawToken(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
