// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for dbpurge.
package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Module IDs derived from the configuration.
const (
	CheckpointNamespace = "checkpoint"
	GatewayModule       = "gateway.http"
)

// Default checkpoint driver when the section omits one.
const DefaultCheckpointDriver = "sqlite"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the directory holding checkpoints and backups.
	DataDir string `yaml:"data_dir,omitempty"`

	Database  DatabaseConfig  `yaml:"database"`
	Backup    BackupConfig    `yaml:"backup"`
	Resources ResourcesConfig `yaml:"resources"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
	Reload    ReloadConfig    `yaml:"reload"`

	// RateLimits bounds gateway traffic per bucket.
	RateLimits RateLimitConfig `yaml:"rate_limits"`

	// Checkpoint is decoded by the checkpoint module selected by its
	// driver key ("sqlite" or "memory").
	Checkpoint yaml.Node `yaml:"checkpoint"`

	// Gateway is decoded by the HTTP gateway module.
	Gateway yaml.Node `yaml:"gateway"`
}

// DatabaseConfig points at the analytics database being purged.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	// Migrate creates the analytics schema when missing. Meant for
	// demos and tests.
	Migrate bool `yaml:"migrate"`
}

// BackupConfig controls where purged rows are dumped.
type BackupConfig struct {
	// Dir defaults to {DataDir}/backups.
	Dir      string `yaml:"dir"`
	Prefix   string `yaml:"prefix"`
	Compress bool   `yaml:"compress"`
	Level    int    `yaml:"level"`
}

// ResourcesConfig bounds the work done per step.
type ResourcesConfig struct {
	// MemoryLimit is a human readable size ("256MiB"). Empty uses the Go
	// runtime soft limit.
	MemoryLimit string `yaml:"memory_limit"`

	// ExecutionWindow is the time budget of one step.
	ExecutionWindow time.Duration `yaml:"execution_window"`

	// Buffer is the fraction of each budget kept in reserve.
	Buffer float64 `yaml:"buffer"`
}

// MemoryBytes parses MemoryLimit. An empty limit yields 0.
func (r ResourcesConfig) MemoryBytes() (int64, error) {
	if r.MemoryLimit == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MemoryLimit)
	if err != nil {
		return 0, fmt.Errorf("config: resources.memory_limit: %w", err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("config: resources.memory_limit: %s is too large", r.MemoryLimit)
	}
	return int64(n), nil
}

// ScheduleConfig holds the background maintenance jobs.
type ScheduleConfig struct {
	// Sweep is the cron expression for dropping expired checkpoints.
	// Empty disables the sweep.
	Sweep     string          `yaml:"sweep"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig purges raw logs older than KeepDays on a schedule.
type RetentionConfig struct {
	// Schedule is a cron expression. Empty disables retention.
	Schedule string `yaml:"schedule"`
	KeepDays int    `yaml:"keep_days"`
}

// Enabled reports whether retention purges are scheduled.
func (r RetentionConfig) Enabled() bool { return r.Schedule != "" }

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// AuditConfig configures the JSONL audit trail.
type AuditConfig struct {
	// Path is the audit file. Empty disables the file sink.
	Path string `yaml:"path"`
}

// ReloadConfig controls hot reload of the configuration file. Rate limits
// and redacted secrets are re-applied; everything else needs a restart.
type ReloadConfig struct {
	// PollInterval is how often the file is checked. Zero selects the
	// default; SIGHUP always triggers a reload.
	PollInterval time.Duration `yaml:"poll_interval"`
	Disabled     bool          `yaml:"disabled"`
}

// RateLimitConfig holds per-minute limits; see security.RateLimitConfig.
type RateLimitConfig struct {
	AuthPerMin       int `yaml:"auth_per_min"`
	JobCreatesPerMin int `yaml:"job_creates_per_min"`
	DownloadsPerMin  int `yaml:"downloads_per_min"`
}

// checkpointHeader is the part of the checkpoint section read here.
type checkpointHeader struct {
	Driver string `yaml:"driver"`
}

// CheckpointDriver returns the configured checkpoint driver.
func (c *Config) CheckpointDriver() (string, error) {
	if c.Checkpoint.Kind == 0 {
		return DefaultCheckpointDriver, nil
	}
	var h checkpointHeader
	if err := c.Checkpoint.Decode(&h); err != nil {
		return "", fmt.Errorf("config: checkpoint: %w", err)
	}
	if h.Driver == "" {
		return DefaultCheckpointDriver, nil
	}
	return h.Driver, nil
}

// CheckpointModule returns the module ID serving checkpoints.
func (c *Config) CheckpointModule() string {
	driver, err := c.CheckpointDriver()
	if err != nil {
		driver = DefaultCheckpointDriver
	}
	return CheckpointNamespace + "." + driver
}

// Modules maps module IDs to their raw YAML configuration. Sections left
// out of the file are omitted so modules fall back to their defaults.
func (c *Config) Modules() map[string]yaml.Node {
	out := make(map[string]yaml.Node, 2)
	if c.Checkpoint.Kind != 0 {
		out[c.CheckpointModule()] = c.Checkpoint
	}
	if c.Gateway.Kind != 0 {
		out[GatewayModule] = c.Gateway
	}
	return out
}
