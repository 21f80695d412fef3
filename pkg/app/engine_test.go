package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/dump"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/reload"
	"github.com/flemzord/dbpurge/internal/security"

	_ "github.com/flemzord/dbpurge/modules/checkpoint/memory"
	_ "github.com/flemzord/dbpurge/modules/checkpoint/sqlite"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeConfig writes a config pointing at a SQLite database under dir,
// followed by extra YAML.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	base := fmt.Sprintf(`version: "1"
data_dir: %s
database:
  driver: sqlite
  dsn: %s
  migrate: true
`, filepath.Join(dir, "data"), filepath.Join(dir, "analytics.db"))
	path := filepath.Join(dir, "dbpurge.yaml")
	if err := os.WriteFile(path, []byte(base+extra), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func openEngine(t *testing.T, extra string) (*Engine, *syncBuffer) {
	t.Helper()
	dir := t.TempDir()
	logs := &syncBuffer{}
	e, err := Open(context.Background(), Params{ConfigPath: writeConfig(t, dir, extra), LogOutput: logs})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, logs
}

func TestOpen_WiresServices(t *testing.T) {
	e, _ := openEngine(t, "checkpoint:\n  driver: memory\n")

	if e.Store == nil || e.Source == nil || e.Backups == nil || e.Dispatcher == nil || e.Registry == nil {
		t.Fatalf("engine not fully wired: %+v", e)
	}
	if _, ok := e.App.Module("checkpoint.memory"); !ok {
		t.Error("checkpoint.memory module not loaded")
	}

	if d, ok := core.ServiceAs[*job.Dispatcher](e.AppCtx, job.ServiceName); !ok || d != e.Dispatcher {
		t.Error("dispatcher service not registered")
	}
	if b, ok := core.ServiceAs[*dump.Dir](e.AppCtx, dump.ServiceName); !ok || b != e.Backups {
		t.Error("backup directory service not registered")
	}
	if _, ok := core.ServiceAs[*security.AuditLogger](e.AppCtx, security.AuditServiceName); !ok {
		t.Error("audit service not registered")
	}

	st, err := e.Dispatcher.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Kind != checkpoint.KindNone {
		t.Errorf("Kind = %q, want none", st.Kind)
	}
}

func TestOpen_DefaultCheckpointDriver(t *testing.T) {
	e, _ := openEngine(t, "")

	if _, ok := e.App.Module("checkpoint.sqlite"); !ok {
		t.Fatal("checkpoint.sqlite module not loaded")
	}
	if _, err := os.Stat(e.DataDir); err != nil {
		t.Errorf("data dir: %v", err)
	}
}

func TestOpen_DataDirOverride(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "override")
	e, err := Open(context.Background(), Params{
		ConfigPath: writeConfig(t, dir, "checkpoint:\n  driver: memory\n"),
		DataDir:    override,
		LogOutput:  &syncBuffer{},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = e.Close() }()

	if e.DataDir != override {
		t.Errorf("DataDir = %q, want %q", e.DataDir, override)
	}
	if _, err := os.Stat(filepath.Join(override, "backups")); err != nil {
		t.Errorf("backup directory: %v", err)
	}
}

func TestOpen_RedactsGatewaySecrets(t *testing.T) {
	e, logs := openEngine(t, `checkpoint:
  driver: memory
gateway:
  auth:
    bearer_token: s3cret-token
`)

	if v, ok := e.Credentials.Get(security.CredGatewayToken); !ok || v != "s3cret-token" {
		t.Fatalf("gateway token not registered: %q %v", v, ok)
	}
	e.Logger.Info("request", "detail", "Bearer s3cret-token")
	out := logs.String()
	if strings.Contains(out, "s3cret-token") {
		t.Errorf("secret leaked into logs:\n%s", out)
	}
	if !strings.Contains(out, security.RedactPlaceholder) {
		t.Errorf("expected placeholder in logs:\n%s", out)
	}
}

func TestOpen_AuditFile(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit", "audit.jsonl")
	e, err := Open(context.Background(), Params{
		ConfigPath: writeConfig(t, dir, "checkpoint:\n  driver: memory\naudit:\n  path: "+auditPath+"\n"),
		LogOutput:  &syncBuffer{},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(auditPath)
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("audit perm = %o, want 600", perm)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		extra string
	}{
		{name: "unknown checkpoint driver", extra: "checkpoint:\n  driver: redis\n"},
		{name: "bad memory limit", extra: "resources:\n  memory_limit: lots\n"},
		{name: "bad schedule", extra: "schedule:\n  sweep: every so often\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			e, err := Open(context.Background(), Params{ConfigPath: writeConfig(t, dir, tt.extra), LogOutput: &syncBuffer{}})
			if err == nil {
				_ = e.Close()
				t.Fatal("expected error")
			}
			if e != nil {
				t.Error("expected nil engine on error")
			}
		})
	}
}

func TestEngine_CloseIdempotent(t *testing.T) {
	e, _ := openEngine(t, "checkpoint:\n  driver: memory\n")

	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var nilEngine *Engine
	if err := nilEngine.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestWireScheduler(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  int
	}{
		{name: "none", extra: "", want: 0},
		{name: "sweep", extra: "schedule:\n  sweep: \"@hourly\"\n", want: 1},
		{name: "sweep and retention", extra: "schedule:\n  sweep: \"@hourly\"\n  retention:\n    schedule: \"0 3 * * *\"\n    keep_days: 90\n", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := openEngine(t, "checkpoint:\n  driver: memory\n"+tt.extra)

			n, err := wireScheduler(e)
			if err != nil {
				t.Fatalf("wireScheduler: %v", err)
			}
			if n != tt.want {
				t.Errorf("jobs = %d, want %d", n, tt.want)
			}
			_, ok := e.App.Module("scheduler")
			if ok != (tt.want > 0) {
				t.Errorf("scheduler loaded = %v, want %v", ok, tt.want > 0)
			}
			sched, ok := core.ServiceAs[*cron.Scheduler](e.AppCtx, cron.ServiceName)
			if !ok {
				t.Fatal("scheduler service not registered")
			}
			if got := len(sched.Jobs()); got != tt.want {
				t.Errorf("scheduler jobs = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadGateway(t *testing.T) {
	e, _ := openEngine(t, "checkpoint:\n  driver: memory\ngateway:\n  bind: 127.0.0.1:0\n")

	if err := loadGateway(e); err != nil {
		t.Fatalf("loadGateway: %v", err)
	}
	if _, ok := e.App.Module("gateway.http"); !ok {
		t.Error("gateway module not loaded")
	}
}

func TestWireReload(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  bool
	}{
		{name: "default", extra: "", want: true},
		{name: "disabled", extra: "reload:\n  disabled: true\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := openEngine(t, "checkpoint:\n  driver: memory\n"+tt.extra)

			if got := wireReload(e); got != tt.want {
				t.Fatalf("wireReload = %v, want %v", got, tt.want)
			}
			if _, ok := e.App.Module(reload.ModuleID); ok != tt.want {
				t.Errorf("reload module loaded = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestReloadAppliesRateLimits(t *testing.T) {
	dir := t.TempDir()
	const base = "checkpoint:\n  driver: memory\nreload:\n  poll_interval: 20ms\n"
	path := writeConfig(t, dir, base)
	e, err := Open(context.Background(), Params{ConfigPath: path, LogOutput: &syncBuffer{}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = e.Close() }()

	if !wireReload(e) {
		t.Fatal("reload not wired")
	}
	if err := e.App.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.App.Stop()

	// Let the watcher record the initial file stamp.
	time.Sleep(60 * time.Millisecond)
	writeConfig(t, dir, base+"rate_limits:\n  job_creates_per_min: 3\n")

	deadline := time.Now().Add(2 * time.Second)
	for e.Limiter.Limit(security.BucketJobCreate) != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("job_create limit = %d, want 3", e.Limiter.Limit(security.BucketJobCreate))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
