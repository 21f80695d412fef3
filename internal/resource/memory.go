package resource

import (
	"math"
	"runtime"
	"runtime/debug"
)

// DefaultMemoryLimit is assumed when the environment reports no usable ceiling.
const DefaultMemoryLimit int64 = 128 << 20

// MemoryEnv reports the memory state of the hosting environment.
type MemoryEnv interface {
	// Limit returns the ceiling in bytes. Values <= 0 or math.MaxInt64
	// mean the ceiling could not be detected.
	Limit() int64

	// Usage returns the bytes currently in use.
	Usage() int64

	// Unbound tries to lift the ceiling. It reports whether the
	// environment accepted the request.
	Unbound() bool
}

// MemoryMonitor estimates the memory headroom against a ceiling.
type MemoryMonitor struct {
	env   MemoryEnv
	limit int64
}

// NewMemoryMonitor creates a monitor and reads the current ceiling.
func NewMemoryMonitor(env MemoryEnv) *MemoryMonitor {
	m := &MemoryMonitor{env: env}
	m.refresh()
	return m
}

func (m *MemoryMonitor) refresh() {
	limit := m.env.Limit()
	if limit <= 0 || limit == math.MaxInt64 {
		limit = DefaultMemoryLimit
	}
	m.limit = max(DefaultMemoryLimit/4, limit)
}

// Limit returns the effective ceiling in bytes.
func (m *MemoryMonitor) Limit() int64 { return m.limit }

// Usage returns the bytes currently in use.
func (m *MemoryMonitor) Usage() int64 { return m.env.Usage() }

// Available returns limit minus current usage. It may be negative.
func (m *MemoryMonitor) Available() int64 {
	return m.limit - m.env.Usage()
}

// RaiseToMaximum asks the environment to lift its ceiling and re-reads it.
func (m *MemoryMonitor) RaiseToMaximum() bool {
	ok := m.env.Unbound()
	m.refresh()
	return ok
}

// CheckHeadroom fails with an *ExceededError when less than
// buffer*Limit bytes remain available.
func (m *MemoryMonitor) CheckHeadroom(buffer float64) error {
	avail := m.Available()
	reserved := int64(float64(m.limit) * buffer)
	if avail < reserved {
		return &ExceededError{Resource: Memory, Available: avail, Reserved: reserved}
	}
	return nil
}

// RuntimeMemory reads memory state from the Go runtime. A positive
// Configured value is the ceiling; otherwise the runtime soft memory
// limit (GOMEMLIMIT) is used.
type RuntimeMemory struct {
	Configured int64
}

// Limit implements MemoryEnv.
func (r RuntimeMemory) Limit() int64 {
	if r.Configured > 0 {
		return r.Configured
	}
	return debug.SetMemoryLimit(-1)
}

// Usage implements MemoryEnv.
func (r RuntimeMemory) Usage() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// Unbound leaves the runtime soft limit alone: it is process-wide and
// belongs to the operator, so the ceiling never rises.
func (RuntimeMemory) Unbound() bool { return false }
