package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/metrics"
)

const defaultRequestTimeout = 60 * time.Second

// Runner starts harvest jobs. *harvest.Orchestrator satisfies it.
type Runner interface {
	Submit(ctx context.Context, entityName string, ids []string) []harvest.Job
	RunBatch(ctx context.Context, entityName string, ids []string) []harvest.Result
}

// Catalog lists registered harvesters. *harvest.Registry satisfies it.
type Catalog interface {
	List() []harvest.Info
	Enabled() []string
}

// ArtifactLoader reads stored artifacts. *artifact.Store satisfies it.
type ArtifactLoader interface {
	Load(ctx context.Context, entityName string, category entity.Category, latestOnly bool) ([]artifact.Artifact, error)
}

// Config controls middleware behaviour.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Runner    Runner
	Catalog   Catalog
	Jobs      harvest.JobStore
	Artifacts ArtifactLoader
	// JobContext parents jobs submitted without waiting. Defaults to context.Background.
	JobContext context.Context
	// Ready reports downstream readiness for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router chi.Router
	deps   Deps
	jobs   *JobHandler
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if deps.JobContext == nil {
		deps.JobContext = context.Background()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		deps:   deps,
		jobs:   NewJobHandler(deps.Jobs, logger),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/harvest", s.harvest)
		r.Get("/harvesters", s.listHarvesters)
		r.Get("/jobs", s.jobs.ListJobs)
		r.Get("/jobs/{job_id}", s.jobs.GetJob)
		r.Get("/entities/{entity}/artifacts", s.loadArtifacts)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type harvestRequest struct {
	Entity     string   `json:"entity"`
	Harvesters []string `json:"harvesters"`
	Wait       bool     `json:"wait"`
}

func (s *Server) harvest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "harvest runner unavailable")
		return
	}
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Entity = strings.TrimSpace(req.Entity)
	if entity.Normalize(req.Entity) == "" {
		writeError(w, http.StatusBadRequest, "entity required")
		return
	}
	ids := req.Harvesters
	if len(ids) == 0 && s.deps.Catalog != nil {
		ids = s.deps.Catalog.Enabled()
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no harvesters requested")
		return
	}

	if req.Wait {
		results := s.deps.Runner.RunBatch(r.Context(), req.Entity, ids)
		writeJSON(w, http.StatusOK, map[string]any{"entity": req.Entity, "results": results})
		return
	}
	jobs := s.deps.Runner.Submit(s.deps.JobContext, req.Entity, ids)
	s.logger.Info("harvest submitted",
		zap.String("entity", req.Entity),
		zap.Strings("harvesters", ids),
		zap.Int("jobs", len(jobs)),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"entity": req.Entity, "jobs": jobs})
}

func (s *Server) listHarvesters(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"harvesters": []harvest.Info{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"harvesters": s.deps.Catalog.List()})
}

// loadArtifacts returns the newest artifact per category; latest=false
// returns every stored version.
func (s *Server) loadArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact store unavailable")
		return
	}
	name := chi.URLParam(r, "entity")
	if entity.Normalize(name) == "" {
		writeError(w, http.StatusBadRequest, "entity required")
		return
	}
	q := r.URL.Query()
	var category entity.Category
	if raw := q.Get("category"); raw != "" {
		parsed, err := entity.ParseCategory(raw)
		if err != nil || parsed == entity.CategoryRaw {
			writeError(w, http.StatusBadRequest, "invalid category")
			return
		}
		category = parsed
	}
	latest := true
	if raw := q.Get("latest"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid latest")
			return
		}
		latest = val
	}

	found, err := s.deps.Artifacts.Load(r.Context(), name, category, latest)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidCategory) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("load artifacts failed", zap.String("entity", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load artifacts")
		return
	}
	if found == nil {
		found = []artifact.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":    name,
		"key":       entity.Normalize(name),
		"artifacts": found,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if expected == "" || key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
