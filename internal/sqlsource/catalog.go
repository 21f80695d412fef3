package sqlsource

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/dbpurge/internal/job"
)

// SiteTables implements job.SiteCatalog.
func (s *Source) SiteTables(context.Context) ([]string, error) {
	out := make([]string, len(siteTables))
	for i, t := range siteTables {
		out[i] = t.name
	}
	return out, nil
}

// SiteName implements job.SiteCatalog.
func (s *Source) SiteName(ctx context.Context, siteID int64) (string, error) {
	var name string
	q := "SELECT name FROM site WHERE idsite = " + s.d.placeholder(1)
	err := s.db.QueryRowContext(ctx, q, siteID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrSiteNotFound, siteID)
	}
	if err != nil {
		return "", fmt.Errorf("sqlsource: site %d: %w", siteID, err)
	}
	return name, nil
}

// SiteCount implements job.SiteCatalog.
func (s *Source) SiteCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM site").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlsource: count sites: %w", err)
	}
	return n, nil
}

// RemoveSite implements job.SiteCatalog.
func (s *Source) RemoveSite(ctx context.Context, siteID int64, sink job.Sink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlsource: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cond := "idsite = " + s.d.placeholder(1)
	var buf bytes.Buffer
	for _, name := range catalogTables {
		if err := s.dumpRows(ctx, tx, &buf, name, cond, []any{siteID}); err != nil {
			return err
		}
		q := fmt.Sprintf("DELETE FROM %s WHERE %s", s.d.quote(name), cond)
		if _, err := tx.ExecContext(ctx, q, siteID); err != nil {
			return fmt.Errorf("sqlsource: delete from %s: %w", name, err)
		}
	}
	if _, err := sink.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlsource: commit: %w", err)
	}
	s.logger.Info("site removed", "site_id", siteID)
	return nil
}
