package harvest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/fetcher"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/progress"
	"github.com/JakeFAU/entity-harvester/internal/storage/memory"
)

type funcHarvester struct {
	info harvest.Info
	fn   func(ctx context.Context, entityName string, saver harvest.Saver) (artifact.Document, error)
}

func (h funcHarvester) Info() harvest.Info { return h.info }

func (h funcHarvester) Harvest(ctx context.Context, entityName string, saver harvest.Saver) (artifact.Document, error) {
	return h.fn(ctx, entityName, saver)
}

func newsHarvester(id string, fn func(context.Context, string, harvest.Saver) (artifact.Document, error)) funcHarvester {
	return funcHarvester{
		info: harvest.Info{ID: id, Name: id, Category: entity.CategoryNews, Enabled: true},
		fn:   fn,
	}
}

// savingHarvester stores a news record and returns it.
func savingHarvester(id string) funcHarvester {
	return newsHarvester(id, func(ctx context.Context, entityName string, saver harvest.Saver) (artifact.Document, error) {
		doc := artifact.Document{"source": id, "query": entityName, "news_items": []any{}}
		if _, err := saver.Save(ctx, entity.CategoryNews, doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages(jobID string) []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Stage
	for _, evt := range r.events {
		if evt.JobID == jobID {
			out = append(out, evt.Stage)
		}
	}
	return out
}

type sequentialIDs struct {
	n atomic.Int64
}

func (s *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("job-%d", s.n.Add(1)), nil
}

func newOrchestrator(t *testing.T, cfg harvest.Config, hs ...harvest.Harvester) (*harvest.Orchestrator, *memory.BlobStore) {
	t.Helper()
	backend := memory.NewBlobStore()
	store, err := artifact.New(backend)
	require.NoError(t, err)
	registry, err := harvest.NewRegistry(hs...)
	require.NoError(t, err)
	orch, err := harvest.New(registry, store, cfg, harvest.WithIDGenerator(&sequentialIDs{}))
	require.NoError(t, err)
	return orch, backend
}

func TestRunBatchIsolatesUnknownHarvester(t *testing.T) {
	t.Parallel()

	orch, backend := newOrchestrator(t, harvest.Config{JobTimeout: 5 * time.Second},
		savingHarvester("google_news"),
		savingHarvester("bing_news"),
	)

	results := orch.RunBatch(context.Background(), "RiverChain Ltd.", []string{"google_news", "ghost", "bing_news"})
	require.Len(t, results, 3)

	assert.Equal(t, "google_news", results[0].HarvesterID)
	assert.Equal(t, "ghost", results[1].HarvesterID)
	assert.Equal(t, "bing_news", results[2].HarvesterID)

	for _, i := range []int{0, 2} {
		res := results[i]
		assert.Equal(t, harvest.StatusSucceeded, res.Status)
		assert.Nil(t, res.Error)
		require.NotNil(t, res.Metadata)
		assert.Equal(t, res.HarvesterID, res.Metadata.HarvesterID)
		assert.False(t, res.Metadata.Timestamp.IsZero())
		assert.Equal(t, "news", res.Category)
		assert.Equal(t, res.HarvesterID, res.Record["source"])
		require.Len(t, res.Artifacts, 1)
	}

	ghost := results[1]
	assert.Equal(t, harvest.StatusFailed, ghost.Status)
	require.NotNil(t, ghost.Error)
	assert.Equal(t, harvest.KindUnknownHarvester, ghost.Error.Kind)
	assert.Contains(t, ghost.Error.Message, `harvester "ghost" not implemented`)
	assert.Nil(t, ghost.Metadata)
	assert.Nil(t, ghost.Record)

	assert.Equal(t, 2, backend.Len())
}

func TestRunBatchPreservesRequestOrder(t *testing.T) {
	t.Parallel()

	var hs []harvest.Harvester
	var ids []string
	for i := range 6 {
		id := fmt.Sprintf("source_%d", i)
		delay := time.Duration(6-i) * 5 * time.Millisecond
		hs = append(hs, newsHarvester(id, func(context.Context, string, harvest.Saver) (artifact.Document, error) {
			time.Sleep(delay)
			return artifact.Document{"source": id}, nil
		}))
		ids = append(ids, id)
	}
	orch, _ := newOrchestrator(t, harvest.Config{Concurrency: 6}, hs...)

	results := orch.RunBatch(context.Background(), "riverchain", ids)
	require.Len(t, results, len(ids))
	for i, res := range results {
		assert.Equal(t, ids[i], res.HarvesterID)
		assert.Equal(t, ids[i], res.Record["source"])
	}
}

func TestRunBatchRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	var hs []harvest.Harvester
	var ids []string
	for i := range 5 {
		id := fmt.Sprintf("source_%d", i)
		hs = append(hs, newsHarvester(id, func(context.Context, string, harvest.Saver) (artifact.Document, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return artifact.Document{}, nil
		}))
		ids = append(ids, id)
	}
	orch, _ := newOrchestrator(t, harvest.Config{Concurrency: 2}, hs...)

	results := orch.RunBatch(context.Background(), "riverchain", ids)
	require.Len(t, results, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunTimeoutFencesLateSaves(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	lateErr := make(chan error, 1)
	slow := newsHarvester("slow", func(_ context.Context, _ string, saver harvest.Saver) (artifact.Document, error) {
		<-release
		_, err := saver.Save(context.Background(), entity.CategoryNews, artifact.Document{"late": true})
		lateErr <- err
		return artifact.Document{}, nil
	})
	orch, backend := newOrchestrator(t, harvest.Config{JobTimeout: 30 * time.Millisecond}, slow, savingHarvester("fast"))

	results := orch.RunBatch(context.Background(), "riverchain", []string{"slow", "fast"})
	require.Len(t, results, 2)

	assert.Equal(t, harvest.StatusFailed, results[0].Status)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, harvest.KindTimeout, results[0].Error.Kind)
	assert.Nil(t, results[0].Metadata)

	assert.Equal(t, harvest.StatusSucceeded, results[1].Status)

	close(release)
	select {
	case err := <-lateErr:
		require.ErrorIs(t, err, harvest.ErrJobAbandoned)
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned harvester never attempted its save")
	}
	assert.Equal(t, 1, backend.Len())
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	boom := newsHarvester("boom", func(context.Context, string, harvest.Saver) (artifact.Document, error) {
		panic("selector table corrupt")
	})
	orch, _ := newOrchestrator(t, harvest.Config{}, boom, savingHarvester("fine"))

	results := orch.RunBatch(context.Background(), "riverchain", []string{"boom", "fine"})
	require.Len(t, results, 2)
	assert.Equal(t, harvest.StatusFailed, results[0].Status)
	assert.Equal(t, harvest.KindPanic, results[0].Error.Kind)
	assert.Contains(t, results[0].Error.Message, "selector table corrupt")
	assert.Equal(t, harvest.StatusSucceeded, results[1].Status)
}

func TestRunClassifiesHarvesterErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want harvest.ErrorKind
	}{
		{
			name: "transient fetch",
			err:  fmt.Errorf("fetch results: %w", &fetcher.TransientError{URL: "https://news.example", StatusCode: 503}),
			want: harvest.KindTransientFetch,
		},
		{
			name: "store write",
			err:  &artifact.WriteError{Key: "companies/x/news", Op: "create", Err: errors.New("disk full")},
			want: harvest.KindStoreWrite,
		},
		{
			name: "plain",
			err:  errors.New("no parser for layout"),
			want: harvest.KindHarvester,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newsHarvester("src", func(context.Context, string, harvest.Saver) (artifact.Document, error) {
				return nil, tc.err
			})
			orch, _ := newOrchestrator(t, harvest.Config{}, h)
			res := orch.Run(context.Background(), "riverchain", "src")
			assert.Equal(t, harvest.StatusFailed, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tc.want, res.Error.Kind)
			assert.Equal(t, tc.err.Error(), res.Error.Message)
		})
	}
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	blocking := newsHarvester("blocking", func(ctx context.Context, _ string, _ harvest.Saver) (artifact.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	orch, _ := newOrchestrator(t, harvest.Config{JobTimeout: 5 * time.Second}, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := orch.Run(ctx, "riverchain", "blocking")
	assert.Equal(t, harvest.StatusFailed, res.Status)
	assert.Equal(t, harvest.KindCanceled, res.Error.Kind)
}

func TestRunRecordsJobsAndEvents(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	events := &recordingEmitter{}
	store, err := artifact.New(memory.NewBlobStore())
	require.NoError(t, err)
	registry, err := harvest.NewRegistry(savingHarvester("google_news"))
	require.NoError(t, err)
	orch, err := harvest.New(registry, store, harvest.Config{},
		harvest.WithIDGenerator(&sequentialIDs{}),
		harvest.WithJobStore(jobs),
		harvest.WithEvents(events),
	)
	require.NoError(t, err)

	results := orch.RunBatch(context.Background(), "RiverChain", []string{"google_news", "ghost"})
	require.Len(t, results, 2)

	ok, err := jobs.GetJob(context.Background(), results[0].JobID)
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusSucceeded, ok.Status)
	require.NotNil(t, ok.StartedAt)
	require.NotNil(t, ok.FinishedAt)
	assert.Equal(t, results[0].Artifacts, ok.Artifacts)

	failed, err := jobs.GetJob(context.Background(), results[1].JobID)
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusFailed, failed.Status)
	assert.Nil(t, failed.StartedAt)
	assert.Equal(t, harvest.KindUnknownHarvester, failed.Error.Kind)

	assert.Equal(t, []progress.Stage{progress.StageJobStart, progress.StageJobDone}, events.stages(results[0].JobID))
	assert.Equal(t, []progress.Stage{progress.StageJobError}, events.stages(results[1].JobID))
}

func TestSubmitRunsInBackground(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	store, err := artifact.New(memory.NewBlobStore())
	require.NoError(t, err)
	registry, err := harvest.NewRegistry(savingHarvester("google_news"))
	require.NoError(t, err)
	orch, err := harvest.New(registry, store, harvest.Config{}, harvest.WithJobStore(jobs))
	require.NoError(t, err)

	submitted := orch.Submit(context.Background(), "RiverChain", []string{"google_news"})
	require.Len(t, submitted, 1)
	assert.Equal(t, harvest.StatusPending, submitted[0].Status)

	require.Eventually(t, func() bool {
		job, err := jobs.GetJob(context.Background(), submitted[0].ID)
		return err == nil && job.Status == harvest.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	store, err := artifact.New(memory.NewBlobStore())
	require.NoError(t, err)
	registry, err := harvest.NewRegistry()
	require.NoError(t, err)

	_, err = harvest.New(nil, store, harvest.Config{})
	require.Error(t, err)
	_, err = harvest.New(registry, nil, harvest.Config{})
	require.Error(t, err)
}
