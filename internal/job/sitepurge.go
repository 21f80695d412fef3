package job

import (
	"context"
	"fmt"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// SitePurge removes every record of one site, table by table, then drops
// the site from the catalog.
type SitePurge struct{}

var _ Processor = SitePurge{}

// Kind implements Processor.
func (SitePurge) Kind() checkpoint.Kind { return checkpoint.KindSitePurge }

func catalogOf(src DataSource) (SiteCatalog, error) {
	cat, ok := src.(SiteCatalog)
	if !ok {
		return nil, fmt.Errorf("%w: data source cannot purge sites", ErrInvalidConfig)
	}
	return cat, nil
}

// Preprocess counts the site's records per table and keeps the non-empty
// tables as the work list.
func (SitePurge) Preprocess(ctx context.Context, r *Run) error {
	cat, err := catalogOf(r.Source)
	if err != nil {
		return err
	}
	tables, err := cat.SiteTables(ctx)
	if err != nil {
		return fmt.Errorf("site tables: %w", err)
	}

	cfg := &r.State.Config
	var total int64
	pending := make([]string, 0, len(tables))
	for _, t := range tables {
		n, err := r.Source.Count(ctx, Criteria{SiteID: cfg.SiteID, Table: t})
		if err != nil {
			return fmt.Errorf("count %s: %w", t, err)
		}
		if n > 0 {
			pending = append(pending, t)
			total += n
		}
	}
	cfg.Tables = pending
	r.State.StepsPlanned = total

	sink, err := r.Sink()
	if err != nil {
		return err
	}
	if err := r.Source.Preamble(ctx, sink); err != nil {
		return fmt.Errorf("preamble: %w", err)
	}
	return nil
}

// Loop purges one chunk of the first pending table. A table is dropped
// from the list once it yields no rows.
func (SitePurge) Loop(ctx context.Context, r *Run) Outcome {
	st := r.State
	if len(st.Config.Tables) == 0 {
		st.StepsDone = st.StepsPlanned
		return progressed(0)
	}
	out := runChunk(ctx, r, Criteria{SiteID: st.Config.SiteID, Table: st.Config.Tables[0]})
	if out.Kind == OutcomeProgress && out.Rows == 0 {
		st.Config.Tables = st.Config.Tables[1:]
		if len(st.Config.Tables) == 0 {
			st.StepsDone = st.StepsPlanned
		}
	}
	return out
}

// Postprocess removes the site's catalog entries and closes the dump.
func (SitePurge) Postprocess(ctx context.Context, r *Run) error {
	cat, err := catalogOf(r.Source)
	if err != nil {
		return err
	}
	sink, err := r.Sink()
	if err != nil {
		return err
	}
	if err := cat.RemoveSite(ctx, r.State.Config.SiteID, sink); err != nil {
		return fmt.Errorf("remove site %d: %w", r.State.Config.SiteID, err)
	}
	if err := r.Source.Appendix(ctx, sink); err != nil {
		return fmt.Errorf("appendix: %w", err)
	}
	return nil
}
