package sqlsource

import (
	"context"
	"fmt"
	"regexp"
)

// Time layout of visit timestamps.
const timeLayout = "2006-01-02 15:04:05"

// visitTable drives log purges. Its children share the visit id.
const visitTable = "log_visit"

var visitChildren = []string{"log_link_visit_action", "log_conversion", "log_conversion_item"}

// siteTable describes a table purged row-wise for one site.
type siteTable struct {
	name string
	key  string
}

// siteTables are purged in order by site purges, before the catalog.
var siteTables = []siteTable{
	{name: visitTable, key: "idvisit"},
	{name: "archive_numeric", key: "idarchive"},
	{name: "archive_blob", key: "idarchive"},
}

// catalogTables hold the site configuration, removed last.
var catalogTables = []string{"site_url", "goal", "site"}

// maintainable matches the tables offered to optimize jobs.
var maintainable = regexp.MustCompile(`^(log|archive)_[a-z0-9_]+$`)

// schemaStatements create the analytics schema. All use IF NOT EXISTS for
// idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS site (
		idsite   INTEGER PRIMARY KEY,
		name     TEXT NOT NULL,
		main_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS site_url (
		idsite INTEGER NOT NULL,
		url    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS goal (
		idsite INTEGER NOT NULL,
		idgoal INTEGER NOT NULL,
		name   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS log_visit (
		idvisit                BIGINT PRIMARY KEY,
		idsite                 INTEGER NOT NULL,
		visit_last_action_time TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_log_visit_time ON log_visit(visit_last_action_time)`,
	`CREATE INDEX IF NOT EXISTS idx_log_visit_site ON log_visit(idsite)`,
	`CREATE TABLE IF NOT EXISTS log_link_visit_action (
		idlink_va BIGINT PRIMARY KEY,
		idvisit   BIGINT NOT NULL,
		idsite    INTEGER NOT NULL,
		url       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS log_conversion (
		idvisit BIGINT NOT NULL,
		idsite  INTEGER NOT NULL,
		idgoal  INTEGER NOT NULL,
		revenue DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS log_conversion_item (
		idvisit BIGINT NOT NULL,
		idsite  INTEGER NOT NULL,
		sku     TEXT NOT NULL,
		price   DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS archive_numeric (
		idarchive BIGINT PRIMARY KEY,
		idsite    INTEGER NOT NULL,
		name      TEXT NOT NULL,
		value     DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS archive_blob (
		idarchive BIGINT PRIMARY KEY,
		idsite    INTEGER NOT NULL,
		name      TEXT NOT NULL,
		value     TEXT
	)`,
}

// Migrate creates the analytics schema if it does not exist.
func (s *Source) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlsource: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}
