// Package gateway exposes the purge jobs and their backup artifacts over
// HTTP. It binds to loopback by default and follows the module system
// pattern: collaborators are resolved from the AppContext service registry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/dump"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/security"
)

// RegistryServiceName is the AppContext service holding the
// *prometheus.Registry served on /metrics.
const RegistryServiceName = "metrics.registry"

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
	_ Jobs              = (*job.Dispatcher)(nil)
	_ Backups           = (*dump.Dir)(nil)
	_ Schedules         = (*cron.Scheduler)(nil)
)

// Jobs is the job API served by the gateway.
type Jobs interface {
	Create(ctx context.Context, kind checkpoint.Kind, cfg checkpoint.Config) (string, error)
	Step(ctx context.Context, token string) (job.Status, error)
	Status(ctx context.Context) (job.Status, error)
	Reset(ctx context.Context) error
	Drive(ctx context.Context, token string, opts job.DriveOptions, observe func(job.Status)) (job.Status, error)
}

// Backups lists and looks up backup artifacts.
type Backups interface {
	List() ([]dump.Artifact, error)
	Lookup(name string) (dump.Artifact, error)
}

// Schedules reports the maintenance jobs.
type Schedules interface {
	Jobs() []cron.JobState
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	startedAt time.Time

	jobs      Jobs
	backups   Backups
	schedules Schedules
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	gatherer  prometheus.Gatherer
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The job dispatcher is required;
// backups, schedules, audit, rate limiting and metrics degrade gracefully when absent.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.logger = ctx.Logger
	g.metrics = &Metrics{}

	jobs, ok := core.ServiceAs[Jobs](ctx, job.ServiceName)
	if !ok {
		return fmt.Errorf("gateway: service %q not available", job.ServiceName)
	}
	g.jobs = jobs

	if b, ok := core.ServiceAs[Backups](ctx, dump.ServiceName); ok {
		g.backups = b
	}
	if sc, ok := core.ServiceAs[Schedules](ctx, cron.ServiceName); ok {
		g.schedules = sc
	}
	if a, ok := core.ServiceAs[*security.AuditLogger](ctx, security.AuditServiceName); ok {
		g.audit = a
	}
	if l, ok := core.ServiceAs[*security.RateLimiter](ctx, security.RateLimiterServiceName); ok {
		g.limiter = l
	}
	if reg, ok := core.ServiceAs[*prometheus.Registry](ctx, RegistryServiceName); ok {
		g.gatherer = reg
		if err := g.metrics.Register(reg); err != nil {
			return fmt.Errorf("gateway: register metrics: %w", err)
		}
	}

	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway auth not configured, job and backup endpoints are disabled")
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
