// Package job implements the resumable purge engine: a phase state machine
// driven one bounded step at a time by an external poller, persisting its
// progress to a checkpoint store between steps.
package job

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

const tracerName = "github.com/flemzord/dbpurge/internal/job"

// Job drives one Processor through its lifecycle.
type Job struct {
	proc   Processor
	deps   Deps
	logger *slog.Logger
}

func newJob(proc Processor, deps Deps) *Job {
	return &Job{
		proc:   proc,
		deps:   deps,
		logger: deps.Logger.With("job", string(proc.Kind())),
	}
}

// Kind returns the job kind.
func (j *Job) Kind() checkpoint.Kind { return j.proc.Kind() }

// Step performs at most one loop unit. The returned Status always carries a
// resource snapshot, and carries the last persisted counters when the step
// fails.
func (j *Job) Step(ctx context.Context, token string) (status Status, err error) {
	kind := j.proc.Kind()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "job.step",
		trace.WithAttributes(attribute.String("job.kind", string(kind))))
	start := j.deps.Now()
	outcome := "error"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status.Error = err.Error()
		}
		span.SetAttributes(
			attribute.Int64("job.steps_done", status.StepsDone),
			attribute.Int64("job.steps_planned", status.StepsPlanned),
		)
		span.End()
		j.deps.Metrics.observeStep(kind, outcome, j.deps.Now().Sub(start).Seconds())
	}()

	// Budgets are measured from the start of this invocation.
	mon := j.deps.Resources()

	st, err := j.deps.Store.Get(ctx, kind)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return StatusOf(nil, mon), fmt.Errorf("%w: no active %s job", ErrConcurrencyViolation, kind)
		}
		return StatusOf(nil, mon), fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if st.Kind != kind || subtle.ConstantTimeCompare([]byte(st.Token), []byte(token)) != 1 {
		return StatusOf(nil, mon), fmt.Errorf("%w: token does not match the active %s job", ErrConcurrencyViolation, kind)
	}

	mon.RaiseToMaximum()

	if st.Finished() {
		outcome = "finished"
		return StatusOf(st, mon), nil
	}

	last := StatusOf(st.Clone(), mon)
	run := &Run{
		State:    st,
		Monitors: mon,
		Source:   j.deps.Source,
		Planner:  j.deps.Planner,
		Logger:   j.logger,
		Buffer:   j.deps.Buffer,
		Now:      j.deps.Now,
		openSink: j.deps.OpenSink,
	}
	defer run.CloseSink() //nolint:errcheck // closed explicitly on the success path

	if st.Phase == checkpoint.PhaseCreated {
		if err := j.proc.Preprocess(ctx, run); err != nil {
			return last, fmt.Errorf("job: preprocess %s: %w", kind, err)
		}
		st.StartedAt = j.deps.Now()
		if err := st.Advance(checkpoint.PhasePreprocessed); err != nil {
			return last, err
		}
		// The header is on disk; a failing first unit must not redo it.
		if err := run.CloseSink(); err != nil {
			return last, err
		}
		if err := j.persist(ctx, st); err != nil {
			return last, err
		}
		j.logger.Info("job preprocessed", "steps_planned", st.StepsPlanned)
		last = StatusOf(st.Clone(), mon)
	}

	var out Outcome
	if !loopFinished(st) {
		if err := st.Advance(checkpoint.PhaseLooping); err != nil {
			return last, err
		}
		before := st.StepsDone
		out = j.proc.Loop(ctx, run)
		switch out.Kind {
		case OutcomeFatal:
			j.logger.Error("job loop failed", "error", out.Err)
			return last, out.Err
		case OutcomeThrottled:
			j.logger.Warn("job throttled",
				"error", out.Err,
				"limit", st.LastLimit,
				"low_resource_streak", st.LowResourceStreak)
		default:
			j.logger.Debug("job unit done", "rows", out.Rows, "limit", st.LastLimit)
		}
		st.StepsDone = min(max(st.StepsDone, before), st.StepsPlanned)
	}

	if loopFinished(st) && !st.Finished() {
		if err := j.proc.Postprocess(ctx, run); err != nil {
			return last, fmt.Errorf("job: postprocess %s: %w", kind, err)
		}
		st.FinishedAt = j.deps.Now()
		if err := st.Advance(checkpoint.PhasePostprocessed); err != nil {
			return last, err
		}
		j.logger.Info("job finished",
			"steps_done", st.StepsDone,
			"duration", st.FinishedAt.Sub(st.StartedAt))
	}

	if err := run.CloseSink(); err != nil {
		return last, err
	}
	if err := j.persist(ctx, st); err != nil {
		return last, err
	}

	j.deps.Metrics.observeState(st, out.Rows)
	status = StatusOf(st, mon)
	status.Throttled = out.Kind == OutcomeThrottled
	outcome = out.Kind.String()
	if st.Finished() {
		outcome = "finished"
	}
	return status, nil
}

func (j *Job) persist(ctx context.Context, st *checkpoint.State) error {
	if err := j.deps.Store.Set(ctx, st); err != nil {
		if errors.Is(err, checkpoint.ErrVersionConflict) {
			return fmt.Errorf("%w: checkpoint changed during step", ErrConcurrencyViolation)
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func loopFinished(st *checkpoint.State) bool {
	return st.Phase != checkpoint.PhaseCreated && st.StepsDone >= st.StepsPlanned
}
