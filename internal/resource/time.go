package resource

import (
	"sync/atomic"
	"time"
)

// DefaultExecutionWindow is assumed when the environment reports no window.
const DefaultExecutionWindow = 60 * time.Second

// TimeEnv reports the execution window granted by the hosting environment.
type TimeEnv interface {
	// Window returns the granted execution time. Zero or negative means
	// no window could be detected.
	Window() time.Duration

	// Unbound tries to remove the window and reports whether it worked.
	Unbound() bool
}

// TimeMonitor estimates the remaining execution time. The deadline is
// anchored at the instant the monitor was created and never moves.
type TimeMonitor struct {
	env      TimeEnv
	now      func() time.Time
	firstUse time.Time
	window   time.Duration
}

// NewTimeMonitor creates a monitor anchored at now(). A nil now uses time.Now.
func NewTimeMonitor(env TimeEnv, now func() time.Time) *TimeMonitor {
	if now == nil {
		now = time.Now
	}
	m := &TimeMonitor{env: env, now: now, firstUse: now()}
	m.refresh()
	return m
}

func (m *TimeMonitor) refresh() {
	w := m.env.Window()
	if w <= 0 {
		w = DefaultExecutionWindow
	}
	m.window = max(DefaultExecutionWindow/4, w)
}

// Window returns the effective execution window.
func (m *TimeMonitor) Window() time.Duration { return m.window }

// Deadline returns first use plus the execution window.
func (m *TimeMonitor) Deadline() time.Time { return m.firstUse.Add(m.window) }

// Usage returns the time elapsed since first use.
func (m *TimeMonitor) Usage() time.Duration { return m.now().Sub(m.firstUse) }

// Available returns the time left before the deadline. It may be negative.
func (m *TimeMonitor) Available() time.Duration {
	return m.Deadline().Sub(m.now())
}

// RaiseToMaximum asks the environment to remove the window and re-reads it.
func (m *TimeMonitor) RaiseToMaximum() bool {
	ok := m.env.Unbound()
	m.refresh()
	return ok
}

// CheckHeadroom fails with an *ExceededError once now is past
// deadline - buffer*window.
func (m *TimeMonitor) CheckHeadroom(buffer float64) error {
	reserved := time.Duration(float64(m.window) * buffer)
	if m.now().After(m.Deadline().Add(-reserved)) {
		return &ExceededError{
			Resource:  Time,
			Available: int64(m.Available() / time.Second),
			Reserved:  int64(reserved / time.Second),
		}
	}
	return nil
}

// StaticWindow is a TimeEnv with a fixed window, typically the write
// timeout of the surface driving the steps. When Raisable is set,
// Unbound drops the window so the default applies.
type StaticWindow struct {
	Duration time.Duration
	Raisable bool

	raised atomic.Bool
}

// Window implements TimeEnv.
func (s *StaticWindow) Window() time.Duration {
	if s.raised.Load() {
		return 0
	}
	return s.Duration
}

// Unbound implements TimeEnv.
func (s *StaticWindow) Unbound() bool {
	if !s.Raisable {
		return false
	}
	s.raised.Store(true)
	return true
}
