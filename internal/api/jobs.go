package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
	jobQueryTimeout = 3 * time.Second
)

// JobLister is implemented by job stores that can enumerate jobs per entity.
type JobLister interface {
	ListJobs(ctx context.Context, entityName string) ([]harvest.Job, error)
}

// JobHandler exposes read-only job status endpoints.
type JobHandler struct {
	store   harvest.JobStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewJobHandler wires the job store and logger.
func NewJobHandler(store harvest.JobStore, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		store:   store,
		timeout: jobQueryTimeout,
		logger:  logger,
	}
}

// GetJob handles GET /v1/jobs/{job_id}. It returns {"job": {...}}, 404 when
// the store reports harvest.ErrJobNotFound, or 503 without a store.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, harvest.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// ListJobs handles GET /v1/jobs?entity=&status=&limit=&offset=.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.store.(JobLister)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "job listing unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status harvest.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err = parseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	jobs, err := lister.ListJobs(ctx, r.URL.Query().Get("entity"))
	if err != nil {
		h.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": page(filterStatus(jobs, status), limit, offset)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (harvest.Status, error) {
	switch strings.ToLower(input) {
	case "pending":
		return harvest.StatusPending, nil
	case "running":
		return harvest.StatusRunning, nil
	case "succeeded", "success":
		return harvest.StatusSucceeded, nil
	case "failed", "error", "failure":
		return harvest.StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func filterStatus(jobs []harvest.Job, status harvest.Status) []harvest.Job {
	if status == "" {
		return jobs
	}
	out := make([]harvest.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

func page(jobs []harvest.Job, limit, offset int) []harvest.Job {
	if offset >= len(jobs) {
		return []harvest.Job{}
	}
	end := offset + limit
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[offset:end]
}
