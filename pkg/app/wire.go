package app

import (
	"github.com/flemzord/dbpurge/internal/config"
	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/reload"
	"github.com/flemzord/dbpurge/internal/security"
)

// schedulerModule wraps a *cron.Scheduler to satisfy core.Module, so the
// maintenance jobs start and stop with the App lifecycle. Start and Stop
// are promoted from the scheduler.
type schedulerModule struct {
	*cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "scheduler"}
}

// NewScheduler builds a scheduler holding the configured maintenance jobs
// and publishes it to the gateway. It returns the number of jobs.
func NewScheduler(e *Engine) (*cron.Scheduler, int, error) {
	sched := cron.NewScheduler(e.Logger)
	var jobs []cron.Job

	s := e.Config.Schedule
	if s.Sweep != "" {
		jobs = append(jobs, &cron.CheckpointSweepJob{
			Store:        e.Store,
			Logger:       e.Logger,
			ScheduleExpr: s.Sweep,
		})
	}
	if s.Retention.Enabled() {
		jobs = append(jobs, &cron.RetentionPurgeJob{
			Purger:       e.Dispatcher,
			KeepDays:     s.Retention.KeepDays,
			Logger:       e.Logger,
			ScheduleExpr: s.Retention.Schedule,
		})
	}
	for _, j := range jobs {
		if err := sched.RegisterJob(j); err != nil {
			return nil, 0, err
		}
	}
	e.AppCtx.RegisterService(cron.ServiceName, sched)
	return sched, len(jobs), nil
}

// wireScheduler appends the scheduler to the app lifecycle. Must be called
// before the gateway is loaded so /status reports the schedule. Nothing
// is appended when the configuration schedules no job.
func wireScheduler(e *Engine) (int, error) {
	sched, n, err := NewScheduler(e)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		e.Logger.Info("scheduler: no maintenance jobs configured")
		return 0, nil
	}
	e.App.AppendModule("scheduler", &schedulerModule{Scheduler: sched})
	return n, nil
}

// loadGateway loads the HTTP gateway module. The gateway resolves the
// dispatcher and friends from the services the engine registered.
func loadGateway(e *Engine) error {
	return e.App.LoadModules([]string{config.GatewayModule})
}

// wireReload appends the hot-reload loop unless disabled. Rate limits and
// redacted secrets follow the file; other settings need a restart.
func wireReload(e *Engine) bool {
	rc := e.Config.Reload
	if rc.Disabled {
		return false
	}
	h := reload.NewHandler(e.ConfigPath, e.Logger,
		reload.ApplierFunc(func(cfg *config.Config) error {
			e.Limiter.Reconfigure(security.RateLimitConfig{
				AuthPerMin:       cfg.RateLimits.AuthPerMin,
				JobCreatesPerMin: cfg.RateLimits.JobCreatesPerMin,
				DownloadsPerMin:  cfg.RateLimits.DownloadsPerMin,
			})
			return nil
		}),
		reload.ApplierFunc(func(cfg *config.Config) error {
			creds, _ := Secrets(cfg)
			e.Redactor.SyncCredentials(creds)
			return nil
		}),
	)
	w := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath:   e.ConfigPath,
		PollInterval: rc.PollInterval,
		Signals:      true,
	})
	e.App.AppendModule(reload.ModuleID, reload.NewModule(w, h, e.Logger))
	return true
}
