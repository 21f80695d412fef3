package job

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// Sink is an append-only artifact writer. Close must be idempotent.
type Sink interface {
	io.WriteCloser
}

// Criteria selects the records a data source operates on.
type Criteria struct {
	// SiteID restricts records to one site when non-zero.
	SiteID int64

	// Until selects records older than this instant when non-zero.
	Until time.Time

	// Table restricts the operation to a single table when non-empty.
	Table string
}

// Request is one bounded unit of work handed to a data source.
type Request struct {
	// Limit is the advisory number of records to process.
	Limit int

	Criteria Criteria

	// Guard, when set, is called between sub-steps and returns a
	// resource.ExceededError once headroom runs out.
	Guard func() error
}

// DataSource executes counts, dumps and deletions against the data store.
type DataSource interface {
	// Count returns how many records match c.
	Count(ctx context.Context, c Criteria) (int64, error)

	// Execute dumps up to req.Limit matching records into sink, deletes
	// them and returns how many were processed. It returns a
	// resource.ExceededError when it cannot finish safely, in which case
	// nothing was deleted.
	Execute(ctx context.Context, req Request, sink Sink) (int64, error)

	// Preamble writes the artifact header.
	Preamble(ctx context.Context, sink Sink) error

	// Appendix writes the artifact trailer.
	Appendix(ctx context.Context, sink Sink) error

	// ListTablesToOptimize returns the tables eligible for maintenance, in order.
	ListTablesToOptimize(ctx context.Context) ([]string, error)

	// OptimizeTable runs maintenance on one table.
	OptimizeTable(ctx context.Context, name string) error
}

// SiteCatalog is implemented by data sources that can purge a whole site.
type SiteCatalog interface {
	// SiteTables returns the tables holding per-site records, in purge order.
	SiteTables(ctx context.Context) ([]string, error)

	// SiteName returns the display name of a site.
	SiteName(ctx context.Context, siteID int64) (string, error)

	// SiteCount returns how many sites exist.
	SiteCount(ctx context.Context) (int64, error)

	// RemoveSite dumps and deletes the catalog entries of a site.
	RemoveSite(ctx context.Context, siteID int64, sink Sink) error
}

// SinkOpener opens the artifact for appending.
type SinkOpener func(artifact string) (Sink, error)

// ArtifactNamer derives the artifact path of a new job.
type ArtifactNamer func(kind checkpoint.Kind, cfg checkpoint.Config) string

// ioSink tags write failures with ErrIO.
type ioSink struct {
	Sink
}

func (s ioSink) Write(p []byte) (int, error) {
	n, err := s.Sink.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return n, nil
}
