package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

// JobStore keeps harvest jobs in process memory.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]harvest.Job
}

var _ harvest.JobStore = (*JobStore)(nil)

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]harvest.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job harvest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return harvest.ErrJobExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// UpdateJob replaces the stored state of an existing job.
func (s *JobStore) UpdateJob(_ context.Context, job harvest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return harvest.ErrJobNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (harvest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return harvest.Job{}, harvest.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ListJobs returns the jobs recorded for an entity, oldest first.
func (s *JobStore) ListJobs(_ context.Context, entityName string) ([]harvest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.Job
	for _, job := range s.jobs {
		if entityName == "" || job.Entity == entityName {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneJob(job harvest.Job) harvest.Job {
	job.Artifacts = append([]string(nil), job.Artifacts...)
	if job.Error != nil {
		info := *job.Error
		job.Error = &info
	}
	return job
}
