package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/resource"
)

// Run is the per-step context handed to a Processor. It is rebuilt on
// every step and never outlives it.
type Run struct {
	State    *checkpoint.State
	Monitors *resource.Monitors
	Source   DataSource
	Planner  ChunkPlanner
	Logger   *slog.Logger
	Buffer   float64
	Now      func() time.Time

	openSink SinkOpener
	sink     Sink
}

// Sink opens the job artifact on first use.
func (r *Run) Sink() (Sink, error) {
	if r.sink != nil {
		return r.sink, nil
	}
	if r.openSink == nil || r.State.Config.Artifact == "" {
		return nil, fmt.Errorf("%w: no artifact configured", ErrIO)
	}
	s, err := r.openSink(r.State.Config.Artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, r.State.Config.Artifact, err)
	}
	r.sink = ioSink{Sink: s}
	return r.sink, nil
}

// CloseSink closes the artifact if it was opened. A later Sink call reopens
// it for appending.
func (r *Run) CloseSink() error {
	if r.sink == nil {
		return nil
	}
	s := r.sink
	r.sink = nil
	if err := s.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}

// Guard returns the headroom check handed to data sources.
func (r *Run) Guard() func() error {
	return r.Monitors.Guard(r.Buffer)
}

// PlanInput captures the current budget for the chunk planner.
func (r *Run) PlanInput() PlanInput {
	in := PlanInput{
		StepsDone:         r.State.StepsDone,
		TimeAvailable:     r.Monitors.Time.Available(),
		MemoryAvailable:   r.Monitors.Memory.Available(),
		LowResourceStreak: r.State.LowResourceStreak,
	}
	if !r.State.StartedAt.IsZero() {
		in.Elapsed = r.Now().Sub(r.State.StartedAt)
	}
	return in
}

// Processor implements the kind-specific parts of a job. Methods mutate
// r.State in place; the Job persists it.
type Processor interface {
	Kind() checkpoint.Kind

	// Preprocess sizes the job. It runs once, in the created phase.
	Preprocess(ctx context.Context, r *Run) error

	// Loop performs one bounded unit of work.
	Loop(ctx context.Context, r *Run) Outcome

	// Postprocess finalizes the job. It runs once, after the last unit.
	Postprocess(ctx context.Context, r *Run) error
}
