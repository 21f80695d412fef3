package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/sqlsource"
)

// Validate checks the structural validity of a Config and returns every
// problem found, joined. Module IDs derived from the configuration must be
// registered.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateDatabase(cfg.Database)...)
	errs = append(errs, validateModules(cfg)...)
	errs = append(errs, validateResources(cfg.Resources)...)
	errs = append(errs, validateBackup(cfg.Backup)...)
	errs = append(errs, validateSchedule(cfg.Schedule)...)

	if cfg.Reload.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("config: reload.poll_interval must be non-negative, got %s", cfg.Reload.PollInterval))
	}

	if r := cfg.Telemetry.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_rate must be within [0, 1], got %g", r))
	}

	return errors.Join(errs...)
}

func validateDatabase(db DatabaseConfig) []error {
	var errs []error
	switch db.Driver {
	case sqlsource.DriverSQLite, sqlsource.DriverPostgres:
	case "":
		errs = append(errs, errors.New("config: database.driver is required"))
	default:
		errs = append(errs, fmt.Errorf("config: unsupported database.driver %q", db.Driver))
	}
	if db.DSN == "" {
		errs = append(errs, errors.New("config: database.dsn is required"))
	}
	return errs
}

func validateModules(cfg *Config) []error {
	var errs []error
	driver, err := cfg.CheckpointDriver()
	if err != nil {
		return []error{err}
	}
	if _, ok := core.GetModule(cfg.CheckpointModule()); !ok {
		errs = append(errs, fmt.Errorf("config: unknown checkpoint.driver %q (available: %s)",
			driver, strings.Join(core.Drivers(CheckpointNamespace), ", ")))
	}
	if cfg.Gateway.Kind != 0 {
		if _, ok := core.GetModule(GatewayModule); !ok {
			errs = append(errs, fmt.Errorf("config: module %q is not available", GatewayModule))
		}
	}
	return errs
}

func validateResources(r ResourcesConfig) []error {
	var errs []error
	if _, err := r.MemoryBytes(); err != nil {
		errs = append(errs, err)
	}
	if r.ExecutionWindow < 0 {
		errs = append(errs, fmt.Errorf("config: resources.execution_window must be non-negative, got %s", r.ExecutionWindow))
	}
	if r.Buffer < 0 || r.Buffer >= 1 {
		errs = append(errs, fmt.Errorf("config: resources.buffer must be within [0, 1), got %g", r.Buffer))
	}
	return errs
}

func validateBackup(b BackupConfig) []error {
	// klauspost/compress accepts -2 (huffman only) through 9.
	if b.Level < -2 || b.Level > 9 {
		return []error{fmt.Errorf("config: backup.level must be within [-2, 9], got %d", b.Level)}
	}
	return nil
}

func validateSchedule(s ScheduleConfig) []error {
	var errs []error
	if s.Sweep != "" {
		if err := cron.ValidateSchedule(s.Sweep); err != nil {
			errs = append(errs, fmt.Errorf("config: schedule.sweep: %w", err))
		}
	}
	if s.Retention.Enabled() {
		if err := cron.ValidateSchedule(s.Retention.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: schedule.retention.schedule: %w", err))
		}
		if s.Retention.KeepDays < 1 {
			errs = append(errs, fmt.Errorf("config: schedule.retention.keep_days must be at least 1, got %d", s.Retention.KeepDays))
		}
	}
	return errs
}
