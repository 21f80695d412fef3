// Package sqlsource is the SQL data source purged by jobs. It dumps rows as
// INSERT statements before deleting them, one transaction per chunk, on
// SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
package sqlsource

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/flemzord/dbpurge/internal/job"
)

// ErrSiteNotFound indicates the site id does not exist.
var ErrSiteNotFound = errors.New("sqlsource: site not found")

// Config selects and locates the database.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Source implements job.DataSource and job.SiteCatalog.
type Source struct {
	db     *sql.DB
	d      dialect
	logger *slog.Logger

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

var (
	_ job.DataSource  = (*Source)(nil)
	_ job.SiteCatalog = (*Source)(nil)
)

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlsource: dsn is required")
	}
	if _, err := dialectFor(cfg.Driver); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: open: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlsource: set busy_timeout: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlsource: ping: %w", err)
	}
	return New(db, cfg.Driver, logger)
}

// New wraps an open database handle.
func New(db *sql.DB, driver string, logger *slog.Logger) (*Source, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{db: db, d: d, logger: logger.With("component", "sqlsource"), now: time.Now}, nil
}

// Close closes the database.
func (s *Source) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Source) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// target resolves the table and key a criteria operates on.
func target(c job.Criteria) (siteTable, error) {
	if c.Table == "" {
		return siteTables[0], nil
	}
	for _, t := range siteTables {
		if t.name == c.Table {
			if c.SiteID <= 0 && t.name != visitTable {
				return siteTable{}, fmt.Errorf("sqlsource: %s requires a site id", t.name)
			}
			return t, nil
		}
	}
	return siteTable{}, fmt.Errorf("sqlsource: table %q cannot be purged", c.Table)
}

// where renders the row filter of c with placeholders starting at 1.
func (s *Source) where(t siteTable, c job.Criteria) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if c.SiteID > 0 {
		args = append(args, c.SiteID)
		conds = append(conds, "idsite = "+s.d.placeholder(len(args)))
	}
	if !c.Until.IsZero() && t.name == visitTable {
		args = append(args, c.Until.UTC().Format(timeLayout))
		conds = append(conds, "visit_last_action_time < "+s.d.placeholder(len(args)))
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Count implements job.DataSource.
func (s *Source) Count(ctx context.Context, c job.Criteria) (int64, error) {
	t, err := target(c)
	if err != nil {
		return 0, err
	}
	cond, args := s.where(t, c)
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.d.quote(t.name), cond)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlsource: count %s: %w", t.name, err)
	}
	return n, nil
}

// Execute implements job.DataSource. The dump is rendered in memory and
// the guard is consulted after each table; nothing is deleted or written
// unless every table fits.
func (s *Source) Execute(ctx context.Context, req job.Request, sink job.Sink) (int64, error) {
	t, err := target(req.Criteria)
	if err != nil {
		return 0, err
	}
	limit := max(req.Limit, 1)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlsource: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := s.selectKeys(ctx, tx, t, req.Criteria, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tables := []string{t.name}
	if t.name == visitTable {
		tables = append(tables, visitChildren...)
	}

	var buf bytes.Buffer
	for _, name := range tables {
		cond, args := s.d.in(t.key, ids, 1)
		if err := s.dumpRows(ctx, tx, &buf, name, cond, args); err != nil {
			return 0, err
		}
		if req.Guard != nil {
			if err := req.Guard(); err != nil {
				s.logger.Debug("chunk aborted", "table", name, "ids", len(ids), "error", err)
				return 0, err
			}
		}
	}

	// Children first so a crash between statements never orphans them.
	for _, name := range slices.Backward(tables) {
		cond, args := s.d.in(t.key, ids, 1)
		q := fmt.Sprintf("DELETE FROM %s WHERE %s", s.d.quote(name), cond)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("sqlsource: delete from %s: %w", name, err)
		}
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlsource: commit: %w", err)
	}
	return int64(len(ids)), nil
}

func (s *Source) selectKeys(ctx context.Context, q queryer, t siteTable, c job.Criteria, limit int) ([]int64, error) {
	cond, args := s.where(t, c)
	args = append(args, limit)
	query := fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[3]s ORDER BY %[1]s LIMIT %[4]s",
		t.key, s.d.quote(t.name), cond, s.d.placeholder(len(args)))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: select %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlsource: scan %s: %w", t.name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: iterate %s: %w", t.name, err)
	}
	return ids, nil
}

// Preamble implements job.DataSource.
func (s *Source) Preamble(_ context.Context, sink job.Sink) error {
	header := fmt.Sprintf("-- dbpurge dump\n-- dialect: %s\n-- created: %s\n\nBEGIN;\n",
		s.d.name, s.now().UTC().Format(time.RFC3339))
	_, err := sink.Write([]byte(header))
	return err
}

// Appendix implements job.DataSource.
func (s *Source) Appendix(_ context.Context, sink job.Sink) error {
	_, err := sink.Write([]byte("\nCOMMIT;\n"))
	return err
}

// ListTablesToOptimize implements job.DataSource.
func (s *Source) ListTablesToOptimize(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.listTables)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlsource: scan table name: %w", err)
		}
		if maintainable.MatchString(name) {
			out = append(out, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: list tables: %w", err)
	}
	return out, nil
}

// OptimizeTable implements job.DataSource.
func (s *Source) OptimizeTable(ctx context.Context, name string) error {
	if !maintainable.MatchString(name) {
		return fmt.Errorf("sqlsource: table %q is not maintainable", name)
	}
	start := s.now()
	if _, err := s.db.ExecContext(ctx, s.d.optimize(name)); err != nil {
		return fmt.Errorf("sqlsource: optimize %s: %w", name, err)
	}
	s.logger.Info("table optimized", "table", name, "duration", s.now().Sub(start))
	return nil
}
