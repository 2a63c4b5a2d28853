// Package app builds the long-lived harvester services from configuration and
// holds them for the CLI commands and the API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/api"
	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/clock/system"
	"github.com/JakeFAU/entity-harvester/internal/config"
	"github.com/JakeFAU/entity-harvester/internal/document"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/extract"
	"github.com/JakeFAU/entity-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/entity-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/entity-harvester/internal/fetcher/detector"
	headlessfetcher "github.com/JakeFAU/entity-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/harvesters"
	"github.com/JakeFAU/entity-harvester/internal/hash/sha256"
	"github.com/JakeFAU/entity-harvester/internal/id/uuid"
	"github.com/JakeFAU/entity-harvester/internal/policy/profile"
	"github.com/JakeFAU/entity-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/entity-harvester/internal/policy/robots"
	"github.com/JakeFAU/entity-harvester/internal/progress"
	"github.com/JakeFAU/entity-harvester/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/entity-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/entity-harvester/internal/report"
	"github.com/JakeFAU/entity-harvester/internal/storage"
	"github.com/JakeFAU/entity-harvester/internal/storage/gcs"
	"github.com/JakeFAU/entity-harvester/internal/storage/local"
	"github.com/JakeFAU/entity-harvester/internal/storage/memory"
	"github.com/JakeFAU/entity-harvester/internal/storage/postgres"
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	transport  fetcher.Fetcher
	publisher  sinks.Publisher
}

// WithLogger sets the root logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer sets where progress collectors are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// WithTransport replaces the colly/chromedp transport. The politeness layer
// still wraps it.
func WithTransport(f fetcher.Fetcher) Option {
	return func(o *options) {
		o.transport = f
	}
}

// WithPublisher replaces the Pub/Sub publisher used for job notifications.
func WithPublisher(p sinks.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// App holds the shared, long-lived services. Build it once with New and
// release it with Close.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        *artifact.Store
	jobs         harvest.JobStore
	registry     *harvest.Registry
	orchestrator *harvest.Orchestrator
	documents    document.Extractor
	hub          *progress.Hub
	pool         *pgxpool.Pool
	clock        harvest.Clock

	jobCtx    context.Context
	cancelJob context.CancelFunc
	closers   []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// New builds every service described by cfg. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: zap.NewNop(), registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: o.logger, clock: system.New(), documents: document.NewRouter()}
	a.jobCtx, a.cancelJob = context.WithCancel(context.Background())

	if err := a.build(ctx, o); err != nil {
		if cerr := a.Close(context.Background()); cerr != nil {
			a.logger.Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}
	a.logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("index", cfg.Index.Enabled()),
		zap.Bool("pubsub", cfg.PubSub.Enabled() || o.publisher != nil),
		zap.Strings("enabled", a.registry.Enabled()),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	storeOpts := []artifact.Option{artifact.WithClock(a.clock), artifact.WithLogger(a.logger)}
	if a.cfg.Index.Enabled() {
		index, err := a.openIndex(ctx)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, artifact.WithIndexer(index, sha256.New()))
	} else {
		a.jobs = memory.NewJobStore()
	}
	a.store, err = artifact.New(backend, storeOpts...)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}

	if err := a.openHub(ctx, o); err != nil {
		return err
	}

	politeness := a.politeness()
	var polite fetcher.Fetcher
	if o.transport != nil {
		polite = fetcher.NewPolite(o.transport, politeness)
	} else {
		polite, err = a.openTransport(politeness)
		if err != nil {
			return err
		}
	}

	catalog, err := harvesters.LoadCatalog(a.cfg.Harvest.SourcesFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	strategy := extract.New(extract.Config{
		MinLinkText:      a.cfg.Harvest.FallbackMinText,
		MaxFallbackLinks: a.cfg.Harvest.FallbackMaxLinks,
	})
	a.registry, err = harvesters.Build(catalog, polite, strategy, a.cfg.Harvest.Enabled,
		harvesters.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("build harvesters: %w", err)
	}

	a.orchestrator, err = harvest.New(a.registry, a.store, harvest.Config{
		JobTimeout:  a.cfg.Harvest.JobTimeout,
		Concurrency: a.cfg.Harvest.Concurrency,
		RawCapture:  a.cfg.Harvest.RawCapture,
	},
		harvest.WithClock(a.clock),
		harvest.WithIDGenerator(uuid.New()),
		harvest.WithJobStore(a.jobs),
		harvest.WithEvents(a.hub),
		harvest.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	return nil
}

func (a *App) openBackend(ctx context.Context) (storage.Backend, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Info("using in-memory artifact storage; artifacts are lost on exit")
		return memory.NewBlobStore(), nil
	case config.BackendGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return client.Close() })
		backend, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return backend, nil
	case config.BackendLocal, "":
		backend, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir}, local.WithLogger(a.logger.Named("storage")))
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) openIndex(ctx context.Context) (*postgres.ArtifactIndex, error) {
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      a.cfg.Index.DSN,
		Table:    a.cfg.Index.Table,
		MaxConns: a.cfg.Index.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	index, err := postgres.NewArtifactIndex(pool, a.cfg.Index.Table)
	if err != nil {
		return nil, err
	}
	jobs, err := postgres.NewJobStore(pool, a.cfg.Index.JobsTable)
	if err != nil {
		return nil, err
	}
	a.jobs = jobs
	return index, nil
}

func (a *App) openHub(ctx context.Context, o options) error {
	var hubSinks []progress.Sink
	if a.cfg.Progress.LogEvents {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	if a.cfg.Progress.MetricEvents {
		promSink, err := sinks.NewPrometheusSink(o.registerer)
		if err != nil {
			return err
		}
		hubSinks = append(hubSinks, promSink)
	}
	publisher := o.publisher
	if publisher == nil && a.cfg.PubSub.Enabled() {
		pub, client, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return err
		}
		a.onClose("pubsub", func(context.Context) error {
			pub.Stop()
			return client.Close()
		})
		publisher = pub
	}
	if publisher != nil {
		hubSinks = append(hubSinks, sinks.NewPublishSink(publisher, a.cfg.PubSub.TopicName))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchSize,
		MaxBatchWait:   a.cfg.Progress.BatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger,
	}, hubSinks...)
	a.onClose("progress", a.hub.Close)
	return nil
}

// openTransport wraps each transport in its own politeness layer over the
// shared pacer, robots cache and blocker, so a headless re-fetch of a
// promoted page is paced and classified like any other request.
func (a *App) openTransport(politeness fetcher.PoliteConfig) (fetcher.Fetcher, error) {
	router := fetcher.Router{
		Plain: fetcher.NewPolite(collyfetcher.New(collyfetcher.Config{Timeout: a.cfg.HTTP.Timeout}), politeness),
	}
	if a.cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.onClose("headless", func(context.Context) error {
			headless.Close()
			return nil
		})
		router.Headless = fetcher.NewPolite(headless, politeness)
		router.Detector = detector.NewHeuristic(a.cfg.Headless.PromoteMinText)
	}
	return router, nil
}

func (a *App) politeness() fetcher.PoliteConfig {
	pol := a.cfg.Politeness
	pacer := ratelimit.New(ratelimit.Config{
		MinDelay:    pol.MinDelay,
		MaxDelay:    pol.MaxDelay,
		GlobalRPS:   pol.GlobalRPS,
		GlobalBurst: pol.GlobalBurst,
	})
	return fetcher.PoliteConfig{
		Pacer:    pacer,
		Robots:   robots.New(pol.RespectRobots, pol.RobotsUserAgent, pacer, a.logger.Named("robots")),
		Identity: profile.New(pol.UserAgents),
		Blocker:  fetcher.NewBlocker(pol.ForbiddenThreshold),
		Events:   a.hub,
		Logger:   a.logger.Named("fetcher"),
	}
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Store returns the artifact store.
func (a *App) Store() *artifact.Store { return a.store }

// Registry returns the harvester registry.
func (a *App) Registry() *harvest.Registry { return a.registry }

// Orchestrator returns the job runner.
func (a *App) Orchestrator() *harvest.Orchestrator { return a.orchestrator }

// Jobs returns the job store.
func (a *App) Jobs() harvest.JobStore { return a.jobs }

// Harvest runs ids, or every enabled harvester when ids is empty, against
// entityName and waits for all results.
func (a *App) Harvest(ctx context.Context, entityName string, ids []string) (report.Batch, error) {
	if entity.Normalize(entityName) == "" {
		return report.Batch{}, fmt.Errorf("entity name %q is empty after normalization", entityName)
	}
	if len(ids) == 0 {
		ids = a.registry.Enabled()
	}
	if len(ids) == 0 {
		return report.Batch{}, errors.New("no harvesters enabled")
	}
	results := a.orchestrator.RunBatch(ctx, entityName, ids)
	return report.Batch{Entity: entityName, Generated: a.clock.Now(), Results: results}, nil
}

// Load returns stored artifacts for entityName.
func (a *App) Load(ctx context.Context, entityName string, category entity.Category, latestOnly bool) ([]artifact.Artifact, error) {
	found, err := a.store.Load(ctx, entityName, category, latestOnly)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	return found, nil
}

// Ingested describes the artifacts written for one document.
type Ingested struct {
	Fields   document.Fields `json:"fields"`
	Document string          `json:"document"`
	Tables   []string        `json:"tables,omitempty"`
}

// Ingest extracts path and saves the result under the document category.
// Each extracted table is also stored as its own CSV artifact.
func (a *App) Ingest(ctx context.Context, entityName, path string) (Ingested, error) {
	fields, err := a.documents.Extract(ctx, path)
	if err != nil {
		return Ingested{}, err
	}
	if fields.Filename == "" {
		fields.Filename = filepath.Base(path)
	}
	key, err := a.store.Save(ctx, entityName, entity.CategoryDocument, fields.Document())
	if err != nil {
		return Ingested{}, fmt.Errorf("save document: %w", err)
	}
	out := Ingested{Fields: fields, Document: key}
	for _, table := range fields.Tables {
		if len(table.Columns) == 0 {
			continue
		}
		id, err := a.store.Save(ctx, entityName, entity.CategoryDocument,
			&artifact.Table{Columns: table.Columns, Rows: table.Rows})
		if err != nil {
			return out, fmt.Errorf("save table %q: %w", table.Name, err)
		}
		out.Tables = append(out.Tables, id)
	}
	a.logger.Info("document ingested",
		zap.String("entity", entityName),
		zap.String("path", path),
		zap.String("artifact", key),
		zap.Int("tables", len(out.Tables)),
	)
	return out, nil
}

// Server builds the HTTP API over the app's services. Jobs submitted through
// it run until Close.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Runner:     a.orchestrator,
		Catalog:    a.registry,
		Jobs:       a.jobs,
		Artifacts:  a.store,
		JobContext: a.jobCtx,
		Ready:      a.Ready,
		Logger:     a.logger,
	}, api.Config{
		AuthEnabled:    a.cfg.Auth.Enabled,
		APIKey:         a.cfg.Auth.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})
}

// Ready pings the Postgres pool when one is configured.
func (a *App) Ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close cancels background jobs and releases services in reverse order of
// creation. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.cancelJob()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
