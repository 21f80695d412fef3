// Package memory registers the in-process checkpoint store as the
// "checkpoint.memory" module. Checkpoints do not survive a restart, which
// suits single-process deployments and tests.
package memory

import (
	"fmt"
	"time"

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
)

// Config holds the memory checkpoint store configuration.
type Config struct {
	// TTL bounds the lifetime of a checkpoint since its last write.
	TTL time.Duration `yaml:"ttl"`
}

// Module publishes a checkpoint.MemoryStore as the "checkpoint.store" service.
type Module struct {
	config Config
	store  *checkpoint.MemoryStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "checkpoint.memory",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("memory: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.store = checkpoint.NewMemoryStore(m.config.TTL)
	ctx.RegisterService(checkpoint.ServiceName, m.store)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.TTL < 0 {
		return fmt.Errorf("memory: ttl must be non-negative, got %s", m.config.TTL)
	}
	return nil
}

// Store returns the provisioned store, or nil before Provision.
func (m *Module) Store() *checkpoint.MemoryStore { return m.store }
