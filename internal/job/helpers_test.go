package job_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/job/jobtest"
	"github.com/flemzord/dbpurge/internal/resource"
	"github.com/flemzord/dbpurge/internal/resource/resourcetest"
)

type fixture struct {
	store *checkpoint.MemoryStore
	src   *jobtest.Source
	sink  *jobtest.Sink
	clock *resourcetest.Clock
	disp  *job.Dispatcher
}

func newFixture(t *testing.T, src *jobtest.Source, opts ...func(*job.Deps)) *fixture {
	t.Helper()

	f := &fixture{
		store: checkpoint.NewMemoryStore(time.Hour),
		src:   src,
		sink:  &jobtest.Sink{},
		clock: resourcetest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.store.SetClock(f.clock.Now)

	deps := job.Deps{
		Store:    f.store,
		Source:   src,
		OpenSink: f.sink.Open,
		ArtifactName: func(kind checkpoint.Kind, cfg checkpoint.Config) string {
			return "backup_" + string(kind)
		},
		Resources: func() *resource.Monitors {
			return resource.NewMonitors(&resourcetest.Memory{LimitVal: 1 << 30}, resourcetest.Window(time.Hour), f.clock.Now)
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    f.clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}

	d, err := job.NewDispatcher(deps)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	f.disp = d
	return f
}

func (f *fixture) create(t *testing.T, kind checkpoint.Kind, cfg checkpoint.Config) string {
	t.Helper()
	tok, err := f.disp.Create(context.Background(), kind, cfg)
	if err != nil {
		t.Fatalf("Create(%s): %v", kind, err)
	}
	return tok
}

func (f *fixture) step(t *testing.T, token string) job.Status {
	t.Helper()
	f.clock.Advance(time.Second)
	st, err := f.disp.Step(context.Background(), token)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return st
}

func (f *fixture) saved(t *testing.T, kind checkpoint.Kind) *checkpoint.State {
	t.Helper()
	st, err := f.store.Get(context.Background(), kind)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", kind, err)
	}
	return st
}

// fixedPlanner requests a constant chunk outside degraded mode.
type fixedPlanner int

func (p fixedPlanner) Limit(in job.PlanInput) int {
	if in.LowResourceStreak > 0 {
		return job.AdaptivePlanner{}.Limit(in)
	}
	return int(p)
}

func withPlanner(p job.ChunkPlanner) func(*job.Deps) {
	return func(d *job.Deps) { d.Planner = p }
}

func lastYear() time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}
