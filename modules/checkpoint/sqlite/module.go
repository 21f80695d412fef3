package sqlite

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module publishes a SQLite checkpoint store as the "checkpoint.store"
// service.
type Module struct {
	config Config
	store  *Store

	closeOnce sync.Once
	closeErr  error
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "checkpoint.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	store, err := Open(context.Background(), m.config, ctx.DataDir)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(checkpoint.ServiceName, store)
	ctx.Logger.Info("checkpoint store opened", "ttl", store.ttl)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Store returns the provisioned store, or nil before Provision.
func (m *Module) Store() *Store { return m.store }

// Stop implements core.Stopper. It is safe to call more than once.
func (m *Module) Stop(_ context.Context) error {
	m.closeOnce.Do(func() {
		if m.store != nil {
			m.closeErr = m.store.Close()
		}
	})
	return m.closeErr
}
