package reload

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/dbpurge/internal/config"
)

func TestModule_ReloadsOnTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbpurge.yaml")
	writeFile(t, path, validConfig)

	applied := make(chan int, 4)
	h := NewHandler(path, testLogger(), ApplierFunc(func(cfg *config.Config) error {
		applied <- cfg.RateLimits.JobCreatesPerMin
		return nil
	}))
	w := NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: time.Hour})
	m := NewModule(w, h, testLogger())

	if got := m.ModuleInfo().ID; got != ModuleID {
		t.Errorf("ID = %q, want %q", got, ModuleID)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Trigger()

	select {
	case n := <-applied:
		if n != 7 {
			t.Errorf("job_creates_per_min = %d, want 7", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload not applied")
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestModule_StopWithoutStart(t *testing.T) {
	t.Parallel()

	m := NewModule(NewWatcher(WatcherConfig{ConfigPath: "/any"}), NewHandler("/any", nil), nil)
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
