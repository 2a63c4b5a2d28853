package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsInOrder(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "harvest-events", map[string]string{"job_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	_, err = pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "memory-2", msgs[1].ID)
	msgs[0].Topic = "mutated"
	assert.Equal(t, "harvest-events", pub.Messages()[0].Topic)

	events := pub.Topic("harvest-events")
	require.Len(t, events, 1)
	assert.Equal(t, map[string]string{"job_id": "a"}, events[0].Payload)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("topic deleted"))
	_, err := pub.Publish(context.Background(), "harvest-events", "x")
	require.ErrorContains(t, err, "topic deleted")

	pub.FailWith(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "harvest-events", "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.Messages())
}
