// Package jobtest provides scripted collaborators for the job package.
package jobtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flemzord/dbpurge/internal/job"
)

// Source is a scripted DataSource and SiteCatalog. Record counts are kept
// per table; the empty table name holds log-purge records.
type Source struct {
	mu sync.Mutex

	// Rows holds the records left per table.
	Rows map[string]int64

	// PerCall, when positive, is returned by Execute regardless of the
	// requested limit (bounded by the rows left).
	PerCall int64

	// CountErrs are returned by successive Count calls. A nil entry lets
	// that call proceed.
	CountErrs []error

	// ExecErrs are returned by successive Execute calls before any rows
	// are processed. A nil entry lets that call proceed.
	ExecErrs []error

	// OptimizeList is returned by ListTablesToOptimize.
	OptimizeList []string

	// OptimizeErr fails OptimizeTable when set.
	OptimizeErr error

	// CatalogTables is returned by SiteTables.
	CatalogTables []string

	// Sites is the number of sites reported by SiteCount.
	Sites int64

	// Names maps site ids to names.
	Names map[int64]string

	Requests   []job.Request
	Optimized  []string
	Removed    []int64
	Preambles  int
	Appendices int
}

var (
	_ job.DataSource  = (*Source)(nil)
	_ job.SiteCatalog = (*Source)(nil)
)

// Count implements job.DataSource.
func (s *Source) Count(_ context.Context, c job.Criteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.CountErrs) > 0 {
		err := s.CountErrs[0]
		s.CountErrs = s.CountErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return s.Rows[c.Table], nil
}

// Execute implements job.DataSource.
func (s *Source) Execute(_ context.Context, req job.Request, sink job.Sink) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if len(s.ExecErrs) > 0 {
		err := s.ExecErrs[0]
		s.ExecErrs = s.ExecErrs[1:]
		if err != nil {
			return 0, err
		}
	}

	left := s.Rows[req.Criteria.Table]
	n := min(int64(req.Limit), left)
	if s.PerCall > 0 {
		n = min(s.PerCall, left)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(sink, "-- %s %d\n", req.Criteria.Table, n); err != nil {
		return 0, err
	}
	s.Rows[req.Criteria.Table] = left - n
	return n, nil
}

// Preamble implements job.DataSource.
func (s *Source) Preamble(_ context.Context, sink job.Sink) error {
	s.mu.Lock()
	s.Preambles++
	s.mu.Unlock()
	_, err := sink.Write([]byte("BEGIN;\n"))
	return err
}

// Appendix implements job.DataSource.
func (s *Source) Appendix(_ context.Context, sink job.Sink) error {
	s.mu.Lock()
	s.Appendices++
	s.mu.Unlock()
	_, err := sink.Write([]byte("COMMIT;\n"))
	return err
}

// ListTablesToOptimize implements job.DataSource.
func (s *Source) ListTablesToOptimize(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.OptimizeList...), nil
}

// OptimizeTable implements job.DataSource.
func (s *Source) OptimizeTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OptimizeErr != nil {
		return s.OptimizeErr
	}
	s.Optimized = append(s.Optimized, name)
	return nil
}

// SiteTables implements job.SiteCatalog.
func (s *Source) SiteTables(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.CatalogTables...), nil
}

// SiteName implements job.SiteCatalog.
func (s *Source) SiteName(_ context.Context, siteID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.Names[siteID]
	if !ok {
		return "", errors.New("jobtest: unknown site")
	}
	return name, nil
}

// SiteCount implements job.SiteCatalog.
func (s *Source) SiteCount(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sites, nil
}

// RemoveSite implements job.SiteCatalog.
func (s *Source) RemoveSite(_ context.Context, siteID int64, sink job.Sink) error {
	s.mu.Lock()
	s.Removed = append(s.Removed, siteID)
	s.mu.Unlock()
	_, err := fmt.Fprintf(sink, "-- site %d\n", siteID)
	return err
}

// ExecCalls returns how many times Execute was called.
func (s *Source) ExecCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// Sink records everything written to every artifact.
type Sink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	opens  []string
	closes int

	// WriteErr fails every write when set.
	WriteErr error
}

type handle struct {
	s      *Sink
	closed bool
}

func (h *handle) Write(p []byte) (int, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.closed {
		return 0, errors.New("jobtest: write on closed sink")
	}
	if h.s.WriteErr != nil {
		return 0, h.s.WriteErr
	}
	return h.s.buf.Write(p)
}

func (h *handle) Close() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.s.closes++
	}
	return nil
}

// Open is a job.SinkOpener appending to the recorded buffer.
func (s *Sink) Open(artifact string) (job.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, artifact)
	return &handle{s: s}, nil
}

// String returns everything written so far.
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Opens returns the artifacts opened so far, in order.
func (s *Sink) Opens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opens...)
}

// Closes returns how many opened handles were closed.
func (s *Sink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
