package job

import (
	"context"
	"fmt"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// Optimize runs table maintenance, one table per unit.
type Optimize struct{}

var _ Processor = Optimize{}

// Kind implements Processor.
func (Optimize) Kind() checkpoint.Kind { return checkpoint.KindOptimize }

// Preprocess resolves the table list.
func (Optimize) Preprocess(ctx context.Context, r *Run) error {
	tables, err := r.Source.ListTablesToOptimize(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	r.State.Config.Tables = tables
	r.State.StepsPlanned = int64(len(tables))
	return nil
}

// Loop optimizes the first pending table.
func (Optimize) Loop(ctx context.Context, r *Run) Outcome {
	st := r.State
	st.LastLimit = 1
	if len(st.Config.Tables) > 0 {
		name := st.Config.Tables[0]
		if err := r.Source.OptimizeTable(ctx, name); err != nil {
			return fatal(fmt.Errorf("job: optimize %s: %w", name, err))
		}
		st.Config.Tables = st.Config.Tables[1:]
	}
	prev := st.StepsDone
	st.StepsDone = st.StepsPlanned - int64(len(st.Config.Tables))
	return progressed(st.StepsDone - prev)
}

// Postprocess implements Processor.
func (Optimize) Postprocess(context.Context, *Run) error { return nil }
