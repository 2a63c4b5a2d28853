package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/entity-harvester/internal/progress"
)

// Publisher delivers a JSON-serializable payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink forwards job completion events to a Publisher so downstream
// consumers learn when an entity has fresh artifacts.
type PublishSink struct {
	publisher Publisher
	topic     string
}

// NewPublishSink builds a sink publishing to topic.
func NewPublishSink(publisher Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic}
}

// Consume publishes job_done and job_error events; other stages are ignored.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageJobDone && evt.Stage != progress.StageJobError {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish %s %s: %w", evt.Stage, evt.JobID, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements progress.Sink.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
