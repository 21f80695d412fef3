package job

import (
	"context"
	"fmt"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// LogPurge removes every record older than a cutoff, in adaptively sized
// chunks.
type LogPurge struct{}

var _ Processor = LogPurge{}

// Kind implements Processor.
func (LogPurge) Kind() checkpoint.Kind { return checkpoint.KindLogPurge }

func logCriteria(cfg checkpoint.Config) Criteria {
	return Criteria{SiteID: cfg.SiteID, Until: cfg.Until}
}

// Preprocess counts the records to purge, then writes the dump header. The
// header goes last so a failed count leaves the artifact untouched.
func (LogPurge) Preprocess(ctx context.Context, r *Run) error {
	n, err := r.Source.Count(ctx, logCriteria(r.State.Config))
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	sink, err := r.Sink()
	if err != nil {
		return err
	}
	if err := r.Source.Preamble(ctx, sink); err != nil {
		return fmt.Errorf("preamble: %w", err)
	}
	r.State.StepsPlanned = max(n, 0)
	return nil
}

// Loop implements Processor.
func (LogPurge) Loop(ctx context.Context, r *Run) Outcome {
	out := runChunk(ctx, r, logCriteria(r.State.Config))
	// The source ran dry before the count was reached.
	if out.Kind == OutcomeProgress && out.Rows == 0 {
		r.State.StepsDone = r.State.StepsPlanned
	}
	return out
}

// Postprocess writes the dump trailer.
func (LogPurge) Postprocess(ctx context.Context, r *Run) error {
	sink, err := r.Sink()
	if err != nil {
		return err
	}
	if err := r.Source.Appendix(ctx, sink); err != nil {
		return fmt.Errorf("appendix: %w", err)
	}
	return nil
}
