package sqlsource

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name string

	// listTables returns every user table name.
	listTables string

	// optimize returns the maintenance statement for one table.
	optimize func(table string) string

	// in renders "col IN (...)" for ids starting at placeholder n and
	// returns the matching arguments.
	in func(col string, ids []int64, n int) (string, []any)

	placeholder func(n int) string
	quote       func(ident string) string
}

var sqliteDialect = dialect{
	name:       DriverSQLite,
	listTables: `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`,
	optimize:   func(t string) string { return "ANALYZE " + quoteDouble(t) },
	in: func(col string, ids []int64, _ int) (string, []any) {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
	},
	placeholder: func(int) string { return "?" },
	quote:       quoteDouble,
}

var postgresDialect = dialect{
	name: DriverPostgres,
	listTables: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
	optimize: func(t string) string { return "VACUUM ANALYZE " + pq.QuoteIdentifier(t) },
	in: func(col string, ids []int64, n int) (string, []any) {
		return fmt.Sprintf("%s = ANY($%d)", col, n), []any{pq.Array(ids)}
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	quote:       pq.QuoteIdentifier,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("sqlsource: unsupported driver %q", driver)
}

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
