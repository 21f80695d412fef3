// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/job"
)

// MockSweeper is a test double for cron.Sweeper.
type MockSweeper struct {
	SweepFunc  func(ctx context.Context) (int, error)
	SweepCalls atomic.Int32
}

var _ cron.Sweeper = (*MockSweeper)(nil)

// Sweep implements cron.Sweeper.
func (m *MockSweeper) Sweep(ctx context.Context) (int, error) {
	m.SweepCalls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return 0, nil
}

// MockPurger is a cron.Purger with canned results. Each call is recorded
// by method name.
type MockPurger struct {
	StatusVal job.Status
	StatusErr error
	CreateErr error
	DriveVal  job.Status
	DriveErr  error
	ResetErr  error

	mu    sync.Mutex
	calls []string
	until []checkpoint.Config
}

var _ cron.Purger = (*MockPurger)(nil)

func (m *MockPurger) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Status implements cron.Purger.
func (m *MockPurger) Status(context.Context) (job.Status, error) {
	m.record("status")
	st := m.StatusVal
	if st.Kind == "" {
		st.Kind = checkpoint.KindNone
	}
	return st, m.StatusErr
}

// Create implements cron.Purger.
func (m *MockPurger) Create(_ context.Context, _ checkpoint.Kind, cfg checkpoint.Config) (string, error) {
	m.record("create")
	m.mu.Lock()
	m.until = append(m.until, cfg)
	m.mu.Unlock()
	return "token", m.CreateErr
}

// Drive implements cron.Purger.
func (m *MockPurger) Drive(context.Context, string, job.DriveOptions, func(job.Status)) (job.Status, error) {
	m.record("drive")
	return m.DriveVal, m.DriveErr
}

// Reset implements cron.Purger.
func (m *MockPurger) Reset(context.Context) error {
	m.record("reset")
	return m.ResetErr
}

// Calls returns the recorded method names in order.
func (m *MockPurger) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Configs returns the configurations passed to Create.
func (m *MockPurger) Configs() []checkpoint.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkpoint.Config(nil), m.until...)
}
