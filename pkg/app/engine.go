package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/config"
	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/dump"
	"github.com/flemzord/dbpurge/internal/gateway"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/resource"
	"github.com/flemzord/dbpurge/internal/security"
	"github.com/flemzord/dbpurge/internal/sqlsource"
)

// Service names published by the engine besides the package-owned ones.
const (
	serviceCredentials = "security.credentials"
	serviceRedactor    = "security.redactor"
	serviceConfigPath  = "config.path"
	serviceSource      = "sqlsource.source"
)

// Params configures Open.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// DataDir overrides the configured data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Engine holds the wired purge components shared by the CLI and the
// server. The caller must Close it.
type Engine struct {
	ConfigPath string
	Config     *config.Config
	DataDir    string
	Logger     *slog.Logger

	App        *core.App
	AppCtx     *core.AppContext
	Store      checkpoint.Store
	Source     *sqlsource.Source
	Backups    *dump.Dir
	Dispatcher *job.Dispatcher
	Registry   *prometheus.Registry

	Credentials *security.CredentialStore
	Redactor    *security.Redactor
	Audit       *security.AuditLogger
	Limiter     *security.RateLimiter

	closers []io.Closer
}

// Open loads and validates the configuration, loads the checkpoint module
// and wires the data source, backup directory and job dispatcher.
func Open(ctx context.Context, params Params) (e *Engine, err error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		if cfgPath, err = ResolveConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	e = &Engine{ConfigPath: cfgPath, Config: cfg}
	defer func() {
		if err != nil {
			_ = e.Close()
			e = nil
		}
	}()

	// Secrets are registered before the first log line so the redactor
	// masks them everywhere.
	e.Credentials, e.Redactor = Secrets(cfg)

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	inner := slog.NewTextHandler(out, &slog.HandlerOptions{Level: params.LogLevel})
	e.Logger = slog.New(security.NewRedactingHandler(inner, e.Redactor))

	if err := e.openAudit(); err != nil {
		return e, err
	}
	e.Limiter = security.NewRateLimiter(security.RateLimitConfig{
		AuthPerMin:       cfg.RateLimits.AuthPerMin,
		JobCreatesPerMin: cfg.RateLimits.JobCreatesPerMin,
		DownloadsPerMin:  cfg.RateLimits.DownloadsPerMin,
	})

	e.DataDir = firstNonEmpty(params.DataDir, cfg.DataDir, DefaultDataDir())
	e.AppCtx = core.NewAppContext(e.Logger, e.DataDir).WithModuleConfigs(cfg.Modules())
	e.AppCtx.RegisterService(serviceCredentials, e.Credentials)
	e.AppCtx.RegisterService(serviceRedactor, e.Redactor)
	e.AppCtx.RegisterService(security.AuditServiceName, e.Audit)
	e.AppCtx.RegisterService(security.RateLimiterServiceName, e.Limiter)
	e.AppCtx.RegisterService(serviceConfigPath, cfgPath)

	e.App = core.NewApp(e.AppCtx)
	if err := e.App.LoadModules(config.Resolve(cfg, false)); err != nil {
		return e, err
	}
	store, ok := core.ServiceAs[checkpoint.Store](e.AppCtx, checkpoint.ServiceName)
	if !ok {
		return e, fmt.Errorf("app: module %s did not provide a checkpoint store", cfg.CheckpointModule())
	}
	e.Store = store

	if err := e.openSource(ctx); err != nil {
		return e, err
	}
	if err := e.openBackups(); err != nil {
		return e, err
	}
	if err := e.buildDispatcher(); err != nil {
		return e, err
	}

	e.Logger.Info("engine ready",
		"config", cfgPath,
		"data_dir", e.DataDir,
		"driver", cfg.Database.Driver,
		"checkpoint", cfg.CheckpointModule())
	return e, nil
}

func (e *Engine) openAudit() error {
	cfg := security.AuditLoggerConfig{Redactor: e.Redactor}
	if path := e.Config.Audit.Path; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("app: audit directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("app: open audit log: %w", err)
		}
		e.closers = append(e.closers, f)
		cfg.Writer = f
	}
	e.Audit = security.NewAuditLogger(cfg)
	return nil
}

func (e *Engine) openSource(ctx context.Context) error {
	db := e.Config.Database
	src, err := sqlsource.Open(ctx, sqlsource.Config{Driver: db.Driver, DSN: db.DSN}, e.Logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, src)
	if db.Migrate {
		if err := src.Migrate(ctx); err != nil {
			return err
		}
	}
	e.Source = src
	e.AppCtx.RegisterService(serviceSource, src)
	return nil
}

func (e *Engine) openBackups() error {
	b := e.Config.Backup
	dir := firstNonEmpty(b.Dir, filepath.Join(e.DataDir, "backups"))
	backups, err := dump.New(dump.Config{Dir: dir, Prefix: b.Prefix, Compress: b.Compress, Level: b.Level})
	if err != nil {
		return err
	}
	e.Backups = backups
	e.AppCtx.RegisterService(dump.ServiceName, backups)
	return nil
}

func (e *Engine) buildDispatcher() error {
	memLimit, err := e.Config.Resources.MemoryBytes()
	if err != nil {
		return err
	}
	window := e.Config.Resources.ExecutionWindow

	e.Registry = prometheus.NewRegistry()
	e.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	disp, err := job.NewDispatcher(job.Deps{
		Store:        e.Store,
		Source:       e.Source,
		OpenSink:     sinkOpener(e.Backups),
		ArtifactName: e.Backups.ArtifactName,
		Resources: func() *resource.Monitors {
			return resource.NewMonitors(
				resource.RuntimeMemory{Configured: memLimit},
				&resource.StaticWindow{Duration: window, Raisable: true},
				time.Now)
		},
		Buffer:  e.Config.Resources.Buffer,
		Metrics: job.NewMetrics(e.Registry),
		Logger:  e.Logger,
	})
	if err != nil {
		return err
	}
	e.Dispatcher = disp
	e.AppCtx.RegisterService(job.ServiceName, disp)
	e.AppCtx.RegisterService(gateway.RegistryServiceName, e.Registry)
	return nil
}

// Close stops the loaded modules and releases the data source and the
// audit file. It is safe to call on a partially opened engine.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.App != nil {
		e.App.Close()
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}

func sinkOpener(d *dump.Dir) job.SinkOpener {
	return func(artifact string) (job.Sink, error) {
		s, err := d.Open(artifact)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// gatewaySecrets is the part of the gateway section holding credentials.
type gatewaySecrets struct {
	Auth struct {
		BearerToken string `yaml:"bearer_token"`
		BasicPass   string `yaml:"basic_pass"`
	} `yaml:"auth"`
}

// Secrets collects the secrets found in cfg and returns a redactor masking
// them.
func Secrets(cfg *config.Config) (*security.CredentialStore, *security.Redactor) {
	creds := security.NewCredentialStore()
	creds.SetDSN(cfg.Database.DSN)
	registerGatewaySecrets(creds, cfg)
	r := security.NewRedactor()
	r.SyncCredentials(creds)
	return creds, r
}

func registerGatewaySecrets(store *security.CredentialStore, cfg *config.Config) {
	if cfg.Gateway.Kind == 0 {
		return
	}
	var gs gatewaySecrets
	if err := cfg.Gateway.Decode(&gs); err != nil {
		return
	}
	if gs.Auth.BearerToken != "" {
		store.Set(security.CredGatewayToken, gs.Auth.BearerToken)
	}
	if gs.Auth.BasicPass != "" {
		store.Set(security.CredGatewayPassword, gs.Auth.BasicPass)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
