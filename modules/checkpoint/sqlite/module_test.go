package sqlite

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/core"
	"gopkg.in/yaml.v3"
)

func newTestAppContext(dataDir string) *core.AppContext {
	return core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), dataDir)
}

func TestModule_ProvisionRegistersStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCtx := newTestAppContext(dir)

	m := &Module{}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("ttl: 30m\nbusy_timeout: 100\n"), &node); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	store, ok := core.ServiceAs[checkpoint.Store](appCtx, checkpoint.ServiceName)
	if !ok {
		t.Fatal("checkpoint.store service not registered")
	}
	if store != checkpoint.Store(m.Store()) {
		t.Error("registered service differs from module store")
	}
	if m.Store().ttl.Minutes() != 30 {
		t.Errorf("ttl = %s, want 30m", m.Store().ttl)
	}
	if _, err := os.Stat(filepath.Join(dir, defaultDBFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestModule_StopTwice(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Provision(newTestAppContext(t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestModule_StopWithoutProvision(t *testing.T) {
	t.Parallel()

	if err := (&Module{}).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestModule_ConfigureRejectsBadYAML(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("busy_timeout: [1, 2]\n"), &node); err != nil {
		t.Fatal(err)
	}
	if err := (&Module{}).Configure(node.Content[0]); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestModule_Registered(t *testing.T) {
	t.Parallel()

	if _, ok := core.GetModule("checkpoint.sqlite"); !ok {
		t.Fatal("checkpoint.sqlite not registered")
	}
}
