package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/progress"
	"github.com/JakeFAU/entity-harvester/internal/publisher/memory"
)

func TestPublishSinkForwardsTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "harvest-events")
	now := time.Now()

	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageJobStart},
		{JobID: "a", TS: now, Stage: progress.StageFetchDone, Site: "x", StatusClass: progress.Status2xx},
		{JobID: "a", TS: now, Stage: progress.StageJobDone},
		{JobID: "b", TS: now, Stage: progress.StageJobError, Note: "timeout: deadline"},
	})
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "harvest-events", msgs[0].Topic)
	require.Equal(t, progress.StageJobDone, msgs[0].Payload.(progress.Event).Stage)
	require.Equal(t, "b", msgs[1].Payload.(progress.Event).JobID)
}

func TestPublishSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("unavailable"))
	sink := NewPublishSink(pub, "t")
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: time.Now(), Stage: progress.StageJobDone},
	})
	require.ErrorContains(t, err, "unavailable")
	require.NoError(t, (*PublishSink)(nil).Consume(context.Background(), nil))
}
