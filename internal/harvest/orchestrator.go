package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/progress"
)

const (
	defaultJobTimeout  = 60 * time.Second
	defaultConcurrency = 4
)

// Config controls job execution.
type Config struct {
	// JobTimeout bounds a single harvester run.
	JobTimeout time.Duration
	// Concurrency caps how many jobs of a batch run at once.
	Concurrency int
	// RawCapture lets harvesters persist fetched pages under raw/.
	RawCapture bool
}

// Clock supplies job timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints job ids.
type IDGenerator interface {
	NewID() (string, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the job clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides the job id source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *Orchestrator) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithJobStore records job state transitions in store.
func WithJobStore(store JobStore) Option {
	return func(o *Orchestrator) {
		o.jobs = store
	}
}

// WithEvents emits job lifecycle events to emitter.
func WithEvents(emitter progress.Emitter) Option {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.events = emitter
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator dispatches harvest jobs. A failing job never affects its siblings.
type Orchestrator struct {
	registry *Registry
	store    ArtifactWriter
	cfg      Config
	clock    Clock
	ids      IDGenerator
	jobs     JobStore
	events   progress.Emitter
	logger   *zap.Logger
}

// New builds an Orchestrator.
func New(registry *Registry, store ArtifactWriter, cfg Config, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("harvester registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	o := &Orchestrator{
		registry: registry,
		store:    store,
		cfg:      cfg,
		clock:    systemClock{},
		ids:      counterIDs{},
		events:   progress.Discard,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o, nil
}

// Registry returns the harvester registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Run executes a single harvester for entityName.
func (o *Orchestrator) Run(ctx context.Context, entityName, harvesterID string) Result {
	return o.RunBatch(ctx, entityName, []string{harvesterID})[0]
}

// RunBatch runs every id for entityName and returns exactly one result per id,
// in request order. Jobs run concurrently up to Config.Concurrency.
func (o *Orchestrator) RunBatch(ctx context.Context, entityName string, ids []string) []Result {
	return o.runJobs(ctx, o.prepare(ctx, entityName, ids))
}

// Submit registers pending jobs and runs them in the background under ctx.
// Progress is observable through the JobStore.
func (o *Orchestrator) Submit(ctx context.Context, entityName string, ids []string) []Job {
	jobs := o.prepare(ctx, entityName, ids)
	out := make([]Job, len(jobs))
	for i, job := range jobs {
		out[i] = *job
	}
	go o.runJobs(ctx, jobs)
	return out
}

func (o *Orchestrator) prepare(ctx context.Context, entityName string, ids []string) []*Job {
	entityName = strings.TrimSpace(entityName)
	now := o.clock.Now()
	jobs := make([]*Job, len(ids))
	for i, id := range ids {
		jobID, err := o.ids.NewID()
		if err != nil {
			o.logger.Warn("job id generation failed", zap.Error(err))
			jobID = fmt.Sprintf("%s-%d-%d", id, now.UnixNano(), i)
		}
		job := &Job{
			ID:          jobID,
			HarvesterID: strings.TrimSpace(id),
			Entity:      entityName,
			Status:      StatusPending,
			CreatedAt:   now,
		}
		if o.jobs != nil {
			if err := o.jobs.CreateJob(ctx, *job); err != nil {
				o.logger.Warn("record job failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}
		jobs[i] = job
	}
	return jobs
}

func (o *Orchestrator) runJobs(ctx context.Context, jobs []*Job) []Result {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = o.execute(ctx, job)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // jobs report failures in their results
	return results
}

type outcome struct {
	doc artifact.Document
	err error
}

func (o *Orchestrator) execute(ctx context.Context, job *Job) Result {
	logger := o.logger.With(
		zap.String("job_id", job.ID),
		zap.String("harvester", job.HarvesterID),
		zap.String("entity", job.Entity),
	)
	h, ok := o.registry.Lookup(job.HarvesterID)
	if !ok {
		err := fmt.Errorf("harvester %q not implemented: %w", job.HarvesterID, ErrUnknownHarvester)
		logger.Warn("unknown harvester requested")
		return o.fail(ctx, job, "", err, 0)
	}
	info := h.Info()

	start := o.clock.Now()
	if err := o.advance(ctx, job, StatusRunning, start); err != nil {
		return o.fail(ctx, job, info.Category.String(), err, 0)
	}
	o.emit(job, progress.StageJobStart, 0, "")
	logger.Info("job started")

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()
	jobCtx = progress.WithJob(jobCtx, progress.Job{ID: job.ID, HarvesterID: job.HarvesterID, Entity: job.Entity})

	saver := newJobSaver(o.store, job.Entity, o.cfg.RawCapture)
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r}}
			}
		}()
		doc, err := h.Harvest(jobCtx, job.Entity, saver)
		done <- outcome{doc: doc, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-jobCtx.Done():
		out.err = jobCtx.Err()
		if errors.Is(out.err, context.DeadlineExceeded) {
			out.err = fmt.Errorf("harvester %q exceeded %s: %w", job.HarvesterID, o.cfg.JobTimeout, out.err)
		}
	}
	elapsed := o.clock.Now().Sub(start)
	if out.err != nil {
		saver.abandon()
		job.Artifacts = saver.saved()
		logger.Warn("job failed", zap.Duration("elapsed", elapsed), zap.Error(out.err))
		return o.fail(ctx, job, info.Category.String(), out.err, elapsed)
	}

	finished := o.clock.Now()
	job.Artifacts = saver.saved()
	if err := o.advance(ctx, job, StatusSucceeded, finished); err != nil {
		return o.fail(ctx, job, info.Category.String(), err, elapsed)
	}
	o.emit(job, progress.StageJobDone, elapsed, "")
	logger.Info("job succeeded", zap.Duration("elapsed", elapsed), zap.Int("artifacts", len(job.Artifacts)))

	record := out.doc
	if record == nil {
		record = artifact.Document{}
	}
	return Result{
		JobID:       job.ID,
		HarvesterID: job.HarvesterID,
		Entity:      job.Entity,
		Category:    info.Category.String(),
		Status:      StatusSucceeded,
		Record:      record,
		Artifacts:   job.Artifacts,
		Metadata: &Metadata{
			HarvesterID: job.HarvesterID,
			Duration:    elapsed,
			Timestamp:   finished,
		},
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *Job, category string, cause error, elapsed time.Duration) Result {
	info := newErrorInfo(cause)
	job.Error = info
	if err := o.advance(ctx, job, StatusFailed, o.clock.Now()); err != nil {
		o.logger.Error("fail job", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.emit(job, progress.StageJobError, elapsed, string(info.Kind)+": "+info.Message)
	return Result{
		JobID:       job.ID,
		HarvesterID: job.HarvesterID,
		Entity:      job.Entity,
		Category:    category,
		Status:      StatusFailed,
		Artifacts:   job.Artifacts,
		Error:       info,
	}
}

func (o *Orchestrator) advance(ctx context.Context, job *Job, to Status, at time.Time) error {
	if err := job.transition(to, at); err != nil {
		return err
	}
	if o.jobs == nil {
		return nil
	}
	// The job context may already be done; status bookkeeping must still land.
	if err := o.jobs.UpdateJob(context.WithoutCancel(ctx), *job); err != nil {
		o.logger.Warn("update job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) emit(job *Job, stage progress.Stage, dur time.Duration, note string) {
	o.events.Emit(progress.Event{
		JobID:       job.ID,
		HarvesterID: job.HarvesterID,
		Entity:      job.Entity,
		TS:          o.clock.Now(),
		Stage:       stage,
		Dur:         dur,
		Note:        note,
	})
}

// counterIDs is the fallback id source when no generator is configured.
type counterIDs struct{}

func (counterIDs) NewID() (string, error) {
	return fmt.Sprintf("job-%d", time.Now().UnixNano()), nil
}
