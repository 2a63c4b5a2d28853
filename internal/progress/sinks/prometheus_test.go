package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "a", HarvesterID: "google_news", TS: now, Stage: progress.StageJobStart},
		{JobID: "b", HarvesterID: "sec_edgar", TS: now, Stage: progress.StageJobStart},
		{
			JobID:       "a",
			TS:          now,
			Stage:       progress.StageFetchDone,
			Site:        "news.google.com",
			Bytes:       1024,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{JobID: "a", HarvesterID: "google_news", TS: now, Stage: progress.StageJobDone, Dur: 2 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("google_news")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("google_news", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))
	require.InDelta(t, 1.0,
		testutil.ToFloat64(sink.fetchRequests.WithLabelValues("news.google.com", string(progress.Status2xx))), 1e-9)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("news.google.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "harvester_fetch_duration_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "b", HarvesterID: "sec_edgar", TS: now, Stage: progress.StageJobError, Note: "timeout"},
		{JobID: "b", HarvesterID: "sec_edgar", TS: now, Stage: progress.StageJobError},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
