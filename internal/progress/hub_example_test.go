package progress

import (
	"context"
	"fmt"
	"time"
)

type stagePrinter struct{}

func (stagePrinter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		fmt.Printf("%s %s\n", evt.HarvesterID, evt.Stage)
	}
	return nil
}

func (stagePrinter) Close(context.Context) error { return nil }

// ExampleHub_Emit shows a job's lifecycle reaching a sink; Close drains the buffer.
func ExampleHub_Emit() {
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 8, MaxBatchWait: time.Hour}, stagePrinter{})

	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	hub.Emit(Event{JobID: "job-1", HarvesterID: "sec_edgar", TS: ts, Stage: StageJobStart})
	hub.Emit(Event{JobID: "job-1", HarvesterID: "sec_edgar", TS: ts, Stage: StageJobDone})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// sec_edgar job_start
	// sec_edgar job_done
}
