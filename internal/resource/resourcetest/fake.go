// Package resourcetest provides controllable environments for the resource package.
package resourcetest

import (
	"sync"
	"time"

	"github.com/flemzord/dbpurge/internal/resource"
)

// Memory is a MemoryEnv with settable limit and usage.
type Memory struct {
	mu        sync.Mutex
	LimitVal  int64
	UsageVal  int64
	CanUnbind bool
	unbinds   int
}

var _ resource.MemoryEnv = (*Memory)(nil)

// Limit implements resource.MemoryEnv.
func (m *Memory) Limit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LimitVal
}

// Usage implements resource.MemoryEnv.
func (m *Memory) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UsageVal
}

// Unbound implements resource.MemoryEnv.
func (m *Memory) Unbound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbinds++
	return m.CanUnbind
}

// SetUsage changes the reported usage.
func (m *Memory) SetUsage(v int64) {
	m.mu.Lock()
	m.UsageVal = v
	m.mu.Unlock()
}

// Unbinds returns how many times Unbound was called.
func (m *Memory) Unbinds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unbinds
}

// Window is a TimeEnv with a fixed window that never unbinds.
type Window time.Duration

var _ resource.TimeEnv = Window(0)

// Window implements resource.TimeEnv.
func (w Window) Window() time.Duration { return time.Duration(w) }

// Unbound implements resource.TimeEnv.
func (w Window) Unbound() bool { return false }

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
