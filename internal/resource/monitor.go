// Package resource estimates the memory and time headroom left to the
// current invocation so long-running work can be sliced into safe chunks.
package resource

import "time"

// DefaultBuffer is the share of a ceiling kept in reserve.
const DefaultBuffer = 0.05

// Monitors pairs the memory and time monitors of one invocation.
type Monitors struct {
	Memory *MemoryMonitor
	Time   *TimeMonitor
}

// NewMonitors builds both monitors. The time deadline is anchored at now().
func NewMonitors(mem MemoryEnv, tm TimeEnv, now func() time.Time) *Monitors {
	return &Monitors{
		Memory: NewMemoryMonitor(mem),
		Time:   NewTimeMonitor(tm, now),
	}
}

// RaiseToMaximum relaxes both ceilings.
func (m *Monitors) RaiseToMaximum() {
	m.Memory.RaiseToMaximum()
	m.Time.RaiseToMaximum()
}

// CheckHeadroom checks time first, then memory.
func (m *Monitors) CheckHeadroom(buffer float64) error {
	if err := m.Time.CheckHeadroom(buffer); err != nil {
		return err
	}
	return m.Memory.CheckHeadroom(buffer)
}

// Guard returns a closure checking both resources with the given buffer.
func (m *Monitors) Guard(buffer float64) func() error {
	return func() error { return m.CheckHeadroom(buffer) }
}

// Snapshot is a point-in-time view of both budgets.
type Snapshot struct {
	MemoryLimit     int64         `json:"memory_limit"`
	MemoryUsage     int64         `json:"memory_usage"`
	MemoryAvailable int64         `json:"memory_available"`
	TimeLimit       time.Time     `json:"time_limit"`
	ExecutionWindow time.Duration `json:"execution_window"`
	TimeUsage       time.Duration `json:"time_usage"`
	TimeAvailable   time.Duration `json:"time_available"`
}

// Snapshot reads both monitors.
func (m *Monitors) Snapshot() Snapshot {
	usage := m.Memory.Usage()
	return Snapshot{
		MemoryLimit:     m.Memory.Limit(),
		MemoryUsage:     usage,
		MemoryAvailable: m.Memory.Limit() - usage,
		TimeLimit:       m.Time.Deadline(),
		ExecutionWindow: m.Time.Window(),
		TimeUsage:       m.Time.Usage(),
		TimeAvailable:   m.Time.Available(),
	}
}
