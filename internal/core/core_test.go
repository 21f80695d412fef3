package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

// lifecycleModule records Start and Stop calls into a shared log.
type lifecycleModule struct {
	id       ModuleID
	log      *callLog
	startErr error
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

func (m *lifecycleModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *lifecycleModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.log.add("start " + string(m.id))
	return nil
}

func (m *lifecycleModule) Stop(context.Context) error {
	m.log.add("stop " + string(m.id))
	return nil
}

func newTestApp() *App {
	return NewApp(NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t0Dir))
}

const t0Dir = "/data"

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()
	app.Close()

	want := []string{"start a", "start b", "stop b", "stop a"}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: log, startErr: errors.New("boom")})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	want := []string{"start a", "stop a"}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestApp_CloseWithoutStart(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: log})

	app.Close()

	want := []string{"stop b", "stop a"}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if _, ok := app.Module("a"); ok {
		t.Error("Close should forget modules")
	}
}

func TestApp_Module(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	mod := &lifecycleModule{id: "checkpoint.memory", log: &callLog{}}
	app.AppendModule(mod.id, mod)

	got, ok := app.Module("checkpoint.memory")
	if !ok || got != mod {
		t.Fatalf("Module() = %v, %v", got, ok)
	}
	if _, ok := app.Module("gateway.http"); ok {
		t.Error("unexpected module")
	}
}

func TestApp_LoadModulesFailureCloses(t *testing.T) {
	t.Cleanup(resetRegistry)

	log := &callLog{}
	RegisterModule(&lifecycleModule{id: "test.ok", log: log})
	RegisterModule(&trackingModule{id: "test.bad", provisionErr: errors.New("nope")})

	app := newTestApp()
	if err := app.LoadModules([]string{"test.ok", "test.bad"}); err == nil {
		t.Fatal("expected load error")
	}
	if got := log.get(); !slices.Equal(got, []string{"stop test.ok"}) {
		t.Errorf("calls = %v", got)
	}
}

func TestApp_RunStopsOnContext(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: log})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Wait until the module started, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for len(log.get()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if got := log.get(); !slices.Equal(got, []string{"start a", "stop a"}) {
		t.Errorf("calls = %v", got)
	}
}
