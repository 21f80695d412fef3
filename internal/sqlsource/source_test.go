package sqlsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/resource"
)

type bufSink struct {
	bytes.Buffer
	err error
}

func (b *bufSink) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.Buffer.Write(p)
}

func (b *bufSink) Close() error { return nil }

var cutoff = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func openTestSource(t *testing.T) *Source {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "data.db")},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

// seed creates sites 1..3 with visits on site 2 and 3: ids 1-6 are old,
// 7-8 are recent.
func seed(t *testing.T, s *Source) {
	t.Helper()
	stmts := []string{
		`INSERT INTO site (idsite, name) VALUES (1, 'default'), (2, 'shop'), (3, 'blog')`,
		`INSERT INTO site_url (idsite, url) VALUES (2, 'https://shop.example'), (3, 'https://blog.example')`,
		`INSERT INTO goal (idsite, idgoal, name) VALUES (2, 1, 'checkout')`,
		`INSERT INTO archive_numeric (idarchive, idsite, name, value) VALUES (1, 2, 'nb_visits', 4), (2, 2, 'nb_actions', 9), (3, 3, 'nb_visits', 2)`,
		`INSERT INTO archive_blob (idarchive, idsite, name, value) VALUES (1, 2, 'Referrers', 'it''s a blob')`,
	}
	for id := 1; id <= 8; id++ {
		ts := "2025-01-10 10:00:00"
		if id > 6 {
			ts = "2025-07-01 10:00:00"
		}
		site := 2 + id%2
		stmts = append(stmts,
			fmt.Sprintf(`INSERT INTO log_visit VALUES (%d, %d, '%s')`, id, site, ts),
			fmt.Sprintf(`INSERT INTO log_link_visit_action VALUES (%d, %d, %d, '/page/%d')`, id*10, id, site, id),
		)
		if id%3 == 0 {
			stmts = append(stmts,
				fmt.Sprintf(`INSERT INTO log_conversion VALUES (%d, %d, 1, 12.5)`, id, site),
				fmt.Sprintf(`INSERT INTO log_conversion_item VALUES (%d, %d, 'SKU-%d', NULL)`, id, site, id),
			)
		}
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}
}

func countRows(t *testing.T, s *Source, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSource_Count(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		c    job.Criteria
		want int64
	}{
		{"old visits", job.Criteria{Until: cutoff}, 6},
		{"old visits of one site", job.Criteria{Until: cutoff, SiteID: 2}, 3},
		{"all visits of a site", job.Criteria{SiteID: 3, Table: "log_visit"}, 4},
		{"archives of a site", job.Criteria{SiteID: 2, Table: "archive_numeric"}, 2},
	}
	for _, tt := range tests {
		got, err := s.Count(ctx, tt.c)
		if err != nil {
			t.Fatalf("%s: Count: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Count = %d, want %d", tt.name, got, tt.want)
		}
	}

	if _, err := s.Count(ctx, job.Criteria{Table: "archive_numeric"}); err == nil {
		t.Error("archive count without site id succeeded")
	}
	if _, err := s.Count(ctx, job.Criteria{Table: "site"}); err == nil {
		t.Error("count on catalog table succeeded")
	}
}

func TestSource_ExecuteDumpsThenDeletes(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	seed(t, s)
	ctx := context.Background()

	var sink bufSink
	n, err := s.Execute(ctx, job.Request{Limit: 3, Criteria: job.Criteria{Until: cutoff}}, &sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 3 {
		t.Fatalf("Execute = %d, want 3", n)
	}

	out := sink.String()
	for _, want := range []string{
		`INSERT INTO "log_visit" ("idvisit", "idsite", "visit_last_action_time") VALUES (1, 3, '2025-01-10 10:00:00');`,
		`INSERT INTO "log_link_visit_action"`,
		`'SKU-3', NULL);`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
	if got := countRows(t, s, "log_visit"); got != 5 {
		t.Errorf("log_visit rows = %d, want 5", got)
	}
	if got := countRows(t, s, "log_link_visit_action"); got != 5 {
		t.Errorf("log_link_visit_action rows = %d, want 5", got)
	}
	if got := countRows(t, s, "log_conversion"); got != 1 {
		t.Errorf("log_conversion rows = %d, want 1", got)
	}

	// Drain the rest; recent visits survive.
	for {
		n, err := s.Execute(ctx, job.Request{Limit: 2, Criteria: job.Criteria{Until: cutoff}}, &sink)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if n == 0 {
			break
		}
	}
	if got := countRows(t, s, "log_visit"); got != 2 {
		t.Errorf("log_visit rows = %d, want 2", got)
	}
}

func TestSource_ExecuteGuardAbortsChunk(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	seed(t, s)

	calls := 0
	guard := func() error {
		calls++
		if calls == 2 {
			return &resource.ExceededError{Resource: resource.Memory}
		}
		return nil
	}
	var sink bufSink
	n, err := s.Execute(context.Background(), job.Request{Limit: 5, Criteria: job.Criteria{Until: cutoff}, Guard: guard}, &sink)
	if !resource.IsExceeded(err, resource.Memory) {
		t.Fatalf("Execute error = %v, want memory exceeded", err)
	}
	if n != 0 || sink.Len() != 0 {
		t.Errorf("aborted chunk reported %d rows and wrote %d bytes", n, sink.Len())
	}
	if got := countRows(t, s, "log_visit"); got != 8 {
		t.Errorf("log_visit rows = %d, want 8 after rollback", got)
	}
}

func TestSource_ExecuteSinkFailureRollsBack(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	seed(t, s)

	sink := bufSink{err: errors.New("disk full")}
	if _, err := s.Execute(context.Background(), job.Request{Limit: 5, Criteria: job.Criteria{Until: cutoff}}, &sink); err == nil {
		t.Fatal("Execute succeeded with failing sink")
	}
	if got := countRows(t, s, "log_link_visit_action"); got != 8 {
		t.Errorf("log_link_visit_action rows = %d, want 8 after rollback", got)
	}
}

func TestSource_Catalog(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	seed(t, s)
	ctx := context.Background()

	name, err := s.SiteName(ctx, 2)
	if err != nil || name != "shop" {
		t.Errorf("SiteName(2) = %q, %v", name, err)
	}
	if _, err := s.SiteName(ctx, 42); !errors.Is(err, ErrSiteNotFound) {
		t.Errorf("SiteName(42) error = %v, want ErrSiteNotFound", err)
	}
	if n, err := s.SiteCount(ctx); err != nil || n != 3 {
		t.Errorf("SiteCount = %d, %v", n, err)
	}
	tables, _ := s.SiteTables(ctx)
	if !slices.Equal(tables, []string{"log_visit", "archive_numeric", "archive_blob"}) {
		t.Errorf("SiteTables = %v", tables)
	}

	var sink bufSink
	if err := s.RemoveSite(ctx, 2, &sink); err != nil {
		t.Fatalf("RemoveSite: %v", err)
	}
	if !strings.Contains(sink.String(), `INSERT INTO "site" ("idsite", "name", "main_url") VALUES (2, 'shop', '');`) {
		t.Errorf("catalog dump = %s", sink.String())
	}
	if got := countRows(t, s, "site"); got != 2 {
		t.Errorf("site rows = %d, want 2", got)
	}
	if got := countRows(t, s, "goal"); got != 0 {
		t.Errorf("goal rows = %d, want 0", got)
	}
}

func TestSource_Optimize(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	ctx := context.Background()

	tables, err := s.ListTablesToOptimize(ctx)
	if err != nil {
		t.Fatalf("ListTablesToOptimize: %v", err)
	}
	want := []string{"archive_blob", "archive_numeric", "log_conversion", "log_conversion_item", "log_link_visit_action", "log_visit"}
	if !slices.Equal(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
	for _, tbl := range tables {
		if err := s.OptimizeTable(ctx, tbl); err != nil {
			t.Errorf("OptimizeTable(%s): %v", tbl, err)
		}
	}
	if err := s.OptimizeTable(ctx, `site"; DROP TABLE site; --`); err == nil {
		t.Error("OptimizeTable accepted an arbitrary name")
	}
}

func TestSource_PreambleAppendix(t *testing.T) {
	t.Parallel()
	s := openTestSource(t)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var sink bufSink
	_ = s.Preamble(context.Background(), &sink)
	_ = s.Appendix(context.Background(), &sink)
	out := sink.String()
	if !strings.Contains(out, "-- created: 2026-01-02T03:04:05Z") || !strings.Contains(out, "BEGIN;") {
		t.Errorf("preamble = %q", out)
	}
	if !strings.HasSuffix(out, "COMMIT;\n") {
		t.Errorf("appendix = %q", out)
	}
}

func TestLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(-4), "-4"},
		{12.5, "12.5"},
		{true, "TRUE"},
		{"it's", "'it''s'"},
		{[]byte("raw"), "'raw'"},
		{time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), "'2025-01-02 03:04:05'"},
	}
	for _, tt := range tests {
		if got := literal(tt.in); got != tt.want {
			t.Errorf("literal(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Error("Open accepted unsupported driver")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverSQLite}, nil); err == nil {
		t.Error("Open accepted empty dsn")
	}
}

func TestDialect_PostgresPlaceholders(t *testing.T) {
	t.Parallel()

	cond, args := postgresDialect.in("idvisit", []int64{1, 2}, 3)
	if cond != "idvisit = ANY($3)" || len(args) != 1 {
		t.Errorf("in = %q, %d args", cond, len(args))
	}
	if got := postgresDialect.optimize("log_visit"); got != `VACUUM ANALYZE "log_visit"` {
		t.Errorf("optimize = %q", got)
	}
	cond, args = sqliteDialect.in("idvisit", []int64{1, 2, 3}, 1)
	if cond != "idvisit IN (?,?,?)" || len(args) != 3 {
		t.Errorf("sqlite in = %q, %d args", cond, len(args))
	}
}
