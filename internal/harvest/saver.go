package harvest

import (
	"context"
	"sync"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
)

// jobSaver binds a job's entity to the artifact store and fences writes once
// the job is abandoned. abandon waits for an in-flight save to finish, so no
// write lands after the job is reported failed.
type jobSaver struct {
	store  ArtifactWriter
	entity string
	raw    bool

	mu        sync.Mutex
	abandoned bool
	ids       []string
}

func newJobSaver(store ArtifactWriter, entityName string, raw bool) *jobSaver {
	return &jobSaver{store: store, entity: entityName, raw: raw}
}

func (s *jobSaver) Save(ctx context.Context, category entity.Category, rec artifact.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return "", ErrJobAbandoned
	}
	id, err := s.store.Save(ctx, s.entity, category, rec)
	if err != nil {
		return "", err
	}
	s.ids = append(s.ids, id)
	return id, nil
}

// SaveRaw stores a raw capture tagged with the job's entity. It is a no-op
// returning "" when raw capture is disabled.
func (s *jobSaver) SaveRaw(ctx context.Context, source string, data any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return "", ErrJobAbandoned
	}
	if !s.raw {
		return "", nil
	}
	id, err := s.store.SaveRaw(ctx, source, data, s.entity)
	if err != nil {
		return "", err
	}
	s.ids = append(s.ids, id)
	return id, nil
}

func (s *jobSaver) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

func (s *jobSaver) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}
