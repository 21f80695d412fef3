package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ServiceName is the AppContext service holding the *Scheduler.
const ServiceName = "cron.scheduler"

// ErrUnknownJob is returned by RunNow for an unregistered job name.
var ErrUnknownJob = errors.New("cron: unknown job")

// ErrBusy is returned by RunNow while the job is already running.
var ErrBusy = errors.New("cron: job already running")

// parser accepts standard 5-field expressions and @descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// JobState reports the schedule and the last run of one job.
type JobState struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Next         time.Time     `json:"next,omitzero"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
}

// entry is one registered job. lock is held for the whole run so a slow
// run never overlaps the next tick of the same job.
type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID

	mu    sync.Mutex
	state JobState
}

// Scheduler manages periodic job execution using cron expressions.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
	now     func() time.Time
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, now: time.Now}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(j.Name()) != nil {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries = append(s.entries, &entry{
		job:   j,
		state: JobState{Name: j.Name(), Schedule: j.Schedule()},
	})
	return nil
}

func (s *Scheduler) lookup(name string) *entry {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return e
		}
	}
	return nil
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithParser(parser))
	ctx, cancel := context.WithCancel(context.Background())

	for _, e := range s.entries {
		id, err := c.AddFunc(e.job.Schedule(), func() {
			// Skip the tick while the previous run still holds the lock.
			if !e.lock.TryLock() {
				s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
				return
			}
			defer e.lock.Unlock()
			s.run(ctx, e)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
		e.id = id
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// RunNow runs the named job once, outside its schedule. It returns the
// job's error, or ErrBusy when a scheduled run is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e := s.lookup(name)
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %q", ErrBusy, name)
	}
	defer e.lock.Unlock()
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.job.Name()
	start := s.now()
	e.mu.Lock()
	e.state.Running = true
	e.mu.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	elapsed := s.now().Sub(start)

	e.mu.Lock()
	e.state.Running = false
	e.state.LastRun = start
	e.state.LastDuration = elapsed
	e.state.Runs++
	e.state.LastError = ""
	if err != nil {
		e.state.Failures++
		e.state.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", name, "duration", elapsed)
	return nil
}

// Jobs returns the state of every registered job, sorted by name. Next
// is set only while the scheduler runs.
func (s *Scheduler) Jobs() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobState, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()
		if s.cron != nil {
			st.Next = s.cron.Entry(e.id).Next
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b JobState) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		// Wait for running jobs to complete.
		<-s.cron.Stop().Done()
		s.cron = nil
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
