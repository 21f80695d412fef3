package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/dbpurge/internal/resource"
)

// runChunk dumps and deletes one planned chunk of records matching crit.
// A memory shortage switches the job to minimal chunks; a second shortage
// in that mode is fatal.
func runChunk(ctx context.Context, r *Run, crit Criteria) Outcome {
	st := r.State
	limit := r.Planner.Limit(r.PlanInput())
	st.LastLimit = limit

	sink, err := r.Sink()
	if err != nil {
		return fatal(err)
	}
	rows, err := r.Source.Execute(ctx, Request{Limit: limit, Criteria: crit, Guard: r.Guard()}, sink)
	switch {
	case resource.IsExceeded(err, resource.Memory):
		_ = r.CloseSink()
		if st.LowResourceStreak > 0 {
			return fatal(fmt.Errorf("%w: memory exhausted at chunk size %d: %w", ErrUnrecoverable, limit, err))
		}
		st.LowResourceStreak = int64(min(limit, DefaultStreakCap))
		return throttled(err)
	case errors.Is(err, resource.ErrExceeded):
		_ = r.CloseSink()
		return throttled(err)
	case err != nil:
		return fatal(fmt.Errorf("job: execute chunk of %d: %w", limit, err))
	}

	if rows > 0 {
		st.StepsDone += rows
		if st.LowResourceStreak > 0 {
			st.LowResourceStreak = max(st.LowResourceStreak-rows, 0)
		}
	}
	return progressed(rows)
}
