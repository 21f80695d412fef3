package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/job"
)

// Sweeper is the subset of checkpoint.Store needed by CheckpointSweepJob.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// CheckpointSweepJob drops checkpoints whose TTL has elapsed.
type CheckpointSweepJob struct {
	Store        Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

var _ Job = (*CheckpointSweepJob)(nil)

// Name implements Job.
func (j *CheckpointSweepJob) Name() string { return "checkpoint_sweep" }

// Schedule implements Job.
func (j *CheckpointSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run removes expired checkpoints.
func (j *CheckpointSweepJob) Run(ctx context.Context) error {
	n, err := j.Store.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("cron: checkpoint sweep: %w", err)
	}
	if n > 0 {
		logger(j.Logger).Info("cron: swept expired checkpoints", "count", n)
	}
	return nil
}

// Purger is the subset of job.Dispatcher driving retention purges.
type Purger interface {
	Status(ctx context.Context) (job.Status, error)
	Create(ctx context.Context, kind checkpoint.Kind, cfg checkpoint.Config) (string, error)
	Drive(ctx context.Context, token string, opts job.DriveOptions, observe func(job.Status)) (job.Status, error)
	Reset(ctx context.Context) error
}

// Defaults for RetentionPurgeJob.
const (
	DefaultRetentionSchedule = "30 3 * * *"
	DefaultMaxThrottled      = 30
)

// RetentionPurgeJob purges raw logs older than KeepDays. It only starts
// when no other job is active, then drives the purge to completion.
type RetentionPurgeJob struct {
	Purger       Purger
	KeepDays     int
	Logger       *slog.Logger
	ScheduleExpr string
	Now          func() time.Time

	// Drive tunes the step loop. MaxThrottled defaults to
	// DefaultMaxThrottled.
	Drive job.DriveOptions
}

var _ Job = (*RetentionPurgeJob)(nil)

// Name implements Job.
func (j *RetentionPurgeJob) Name() string { return "retention_purge" }

// Schedule implements Job.
func (j *RetentionPurgeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultRetentionSchedule
}

// Cutoff returns the instant before which records are purged.
func (j *RetentionPurgeJob) Cutoff() time.Time {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	return now().UTC().AddDate(0, 0, -j.KeepDays)
}

// Run creates a log purge for records older than the retention window and
// steps it until done. A finished job is reset so the next run starts
// clean; a throttled or failed one is left for inspection.
func (j *RetentionPurgeJob) Run(ctx context.Context) error {
	log := logger(j.Logger)
	if j.KeepDays <= 0 {
		return errors.New("cron: retention keep_days must be positive")
	}

	active, err := j.Purger.Status(ctx)
	if err != nil {
		return fmt.Errorf("cron: retention status: %w", err)
	}
	if active.Kind != checkpoint.KindNone {
		log.Info("cron: job active, skipping retention purge", "kind", string(active.Kind))
		return nil
	}

	cutoff := j.Cutoff()
	token, err := j.Purger.Create(ctx, checkpoint.KindLogPurge, checkpoint.Config{Until: cutoff})
	if err != nil {
		return fmt.Errorf("cron: retention create: %w", err)
	}
	log.Info("cron: retention purge started", "until", cutoff)

	opts := j.Drive
	if opts.MaxThrottled == 0 {
		opts.MaxThrottled = DefaultMaxThrottled
	}
	st, err := j.Purger.Drive(ctx, token, opts, nil)
	if err != nil {
		return fmt.Errorf("cron: retention purge at %d/%d: %w", st.StepsDone, st.StepsPlanned, err)
	}

	log.Info("cron: retention purge finished", "records", st.StepsDone)
	if err := j.Purger.Reset(ctx); err != nil {
		return fmt.Errorf("cron: retention reset: %w", err)
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
