package reload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flemzord/dbpurge/internal/core"
)

// ModuleID is the lifecycle ID of the reload loop.
const ModuleID = "reload"

// Module runs a Watcher and feeds its events to a Handler for the App
// lifecycle.
type Module struct {
	watcher *Watcher
	handler *Handler
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ core.Module  = (*Module)(nil)
	_ core.Starter = (*Module)(nil)
	_ core.Stopper = (*Module)(nil)
)

// NewModule wires a watcher to a handler.
func NewModule(w *Watcher, h *Handler, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{watcher: w, handler: h, logger: logger}
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID}
}

// Start implements core.Starter.
func (m *Module) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.watcher.Start(ctx)

	m.wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-m.watcher.Events():
				m.logger.Info("reloading configuration", "trigger", string(ev.Type))
				if err := m.handler.HandleReload(ctx); err != nil {
					m.logger.Error("configuration reload failed", "error", err)
				}
			}
		}
	})
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.watcher.Stop()
	m.wg.Wait()
	return nil
}
