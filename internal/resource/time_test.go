package resource_test

import (
	"testing"
	"time"

	"github.com/flemzord/dbpurge/internal/resource"
	"github.com/flemzord/dbpurge/internal/resource/resourcetest"
)

func TestTimeMonitor_Window(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		window time.Duration
		want   time.Duration
	}{
		{"configured", 90 * time.Second, 90 * time.Second},
		{"absent", 0, resource.DefaultExecutionWindow},
		{"floored", time.Second, resource.DefaultExecutionWindow / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := resource.NewTimeMonitor(resourcetest.Window(tt.window), nil)
			if got := m.Window(); got != tt.want {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeMonitor_DeadlineFixedAtFirstUse(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := resourcetest.NewClock(start)
	m := resource.NewTimeMonitor(resourcetest.Window(60*time.Second), clock.Now)

	clock.Advance(20 * time.Second)
	if got := m.Deadline(); !got.Equal(start.Add(60 * time.Second)) {
		t.Errorf("Deadline() = %v, want %v", got, start.Add(60*time.Second))
	}
	if got := m.Available(); got != 40*time.Second {
		t.Errorf("Available() = %v, want 40s", got)
	}
	if got := m.Usage(); got != 20*time.Second {
		t.Errorf("Usage() = %v, want 20s", got)
	}
}

func TestTimeMonitor_CheckHeadroom(t *testing.T) {
	t.Parallel()

	clock := resourcetest.NewClock(time.Unix(0, 0))
	m := resource.NewTimeMonitor(resourcetest.Window(100*time.Second), clock.Now)

	clock.Advance(94 * time.Second)
	if err := m.CheckHeadroom(0.05); err != nil {
		t.Fatalf("6s left with 5s reserve: unexpected error %v", err)
	}

	clock.Advance(2 * time.Second)
	err := m.CheckHeadroom(0.05)
	if !resource.IsExceeded(err, resource.Time) {
		t.Fatalf("expected time exhaustion, got %v", err)
	}
}

func TestStaticWindow_Unbound(t *testing.T) {
	t.Parallel()

	fixed := &resource.StaticWindow{Duration: 30 * time.Second}
	if fixed.Unbound() {
		t.Error("non-raisable window accepted Unbound")
	}
	if fixed.Window() != 30*time.Second {
		t.Errorf("Window() = %v, want 30s", fixed.Window())
	}

	raisable := &resource.StaticWindow{Duration: 30 * time.Second, Raisable: true}
	m := resource.NewTimeMonitor(raisable, nil)
	if !m.RaiseToMaximum() {
		t.Error("RaiseToMaximum() = false, want true")
	}
	if m.Window() != resource.DefaultExecutionWindow {
		t.Errorf("Window() after raise = %v, want default", m.Window())
	}
}

func TestMonitors_CheckHeadroomTimeFirst(t *testing.T) {
	t.Parallel()

	clock := resourcetest.NewClock(time.Unix(0, 0))
	mem := &resourcetest.Memory{LimitVal: 100 << 20, UsageVal: 99 << 20}
	m := resource.NewMonitors(mem, resourcetest.Window(60*time.Second), clock.Now)

	if err := m.CheckHeadroom(0.05); !resource.IsExceeded(err, resource.Memory) {
		t.Fatalf("expected memory exhaustion, got %v", err)
	}

	clock.Advance(time.Minute)
	if err := m.Guard(0.05)(); !resource.IsExceeded(err, resource.Time) {
		t.Fatalf("expected time exhaustion first, got %v", err)
	}

	snap := m.Snapshot()
	if snap.MemoryAvailable != 1<<20 {
		t.Errorf("snapshot memory available = %d, want %d", snap.MemoryAvailable, 1<<20)
	}
	if snap.TimeAvailable != 0 {
		t.Errorf("snapshot time available = %v, want 0", snap.TimeAvailable)
	}
}
