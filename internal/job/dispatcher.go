package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/resource"
)

// ServiceName is the AppContext service under which the dispatcher is
// published.
const ServiceName = "job.dispatcher"

// Deps holds the collaborators shared by the dispatcher and its jobs.
type Deps struct {
	Store        checkpoint.Store
	Source       DataSource
	OpenSink     SinkOpener
	ArtifactName ArtifactNamer

	// Resources builds fresh monitors for one step.
	Resources func() *resource.Monitors

	// Buffer is the share of each ceiling kept in reserve.
	Buffer float64

	Planner  ChunkPlanner
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time
	NewToken func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Buffer <= 0 {
		d.Buffer = resource.DefaultBuffer
	}
	if d.Planner == nil {
		d.Planner = AdaptivePlanner{}
	}
	if d.NewToken == nil {
		d.NewToken = uuid.NewString
	}
	if d.Resources == nil {
		now := d.Now
		d.Resources = func() *resource.Monitors {
			return resource.NewMonitors(resource.RuntimeMemory{}, &resource.StaticWindow{}, now)
		}
	}
	return d
}

// Dispatcher creates jobs and recovers the active one. At most one job
// exists at a time.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
}

// NewDispatcher validates deps and fills in defaults.
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, errors.New("job: checkpoint store is required")
	}
	if deps.Source == nil {
		return nil, errors.New("job: data source is required")
	}
	deps = deps.withDefaults()
	return &Dispatcher{deps: deps, logger: deps.Logger.With("component", "job.dispatcher")}, nil
}

// JobFor returns the job runner for kind.
func (d *Dispatcher) JobFor(kind checkpoint.Kind) (*Job, error) {
	var p Processor
	switch kind {
	case checkpoint.KindSitePurge:
		p = SitePurge{}
	case checkpoint.KindLogPurge:
		p = LogPurge{}
	case checkpoint.KindOptimize:
		p = Optimize{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return newJob(p, d.deps), nil
}

// Create discards any existing checkpoint, stores a fresh job of kind and
// returns its token.
func (d *Dispatcher) Create(ctx context.Context, kind checkpoint.Kind, cfg checkpoint.Config) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	cfg.Tables = nil
	if err := d.validate(ctx, kind, &cfg); err != nil {
		return "", err
	}
	if kind != checkpoint.KindOptimize && d.deps.ArtifactName != nil {
		cfg.Artifact = d.deps.ArtifactName(kind, cfg)
	}

	if err := d.deps.Store.DeleteAll(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	token := d.deps.NewToken()
	if err := d.deps.Store.Set(ctx, checkpoint.New(kind, token, cfg)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	d.logger.Info("job created", "kind", string(kind), "artifact", cfg.Artifact)
	return token, nil
}

func (d *Dispatcher) validate(ctx context.Context, kind checkpoint.Kind, cfg *checkpoint.Config) error {
	switch kind {
	case checkpoint.KindLogPurge:
		if cfg.Until.IsZero() {
			return fmt.Errorf("%w: log purge requires a cutoff", ErrInvalidConfig)
		}
		if cfg.Until.After(d.deps.Now()) {
			return fmt.Errorf("%w: cutoff %s is in the future", ErrInvalidConfig, cfg.Until.Format(time.RFC3339))
		}
	case checkpoint.KindSitePurge:
		if cfg.SiteID <= 0 {
			return fmt.Errorf("%w: site purge requires a site id", ErrInvalidConfig)
		}
		return d.checkSite(ctx, cfg)
	}
	return nil
}

// checkSite refuses the default site and the last remaining one.
func (d *Dispatcher) checkSite(ctx context.Context, cfg *checkpoint.Config) error {
	if cfg.SiteID == 1 {
		return fmt.Errorf("%w: site 1 cannot be deleted", ErrProtectedSite)
	}
	cat, err := catalogOf(d.deps.Source)
	if err != nil {
		return err
	}
	n, err := cat.SiteCount(ctx)
	if err != nil {
		return fmt.Errorf("job: count sites: %w", err)
	}
	if n <= 1 {
		return fmt.Errorf("%w: the last site cannot be deleted", ErrProtectedSite)
	}
	name, err := cat.SiteName(ctx, cfg.SiteID)
	if err != nil {
		return fmt.Errorf("%w: site %d: %w", ErrInvalidConfig, cfg.SiteID, err)
	}
	cfg.SiteName = name
	return nil
}

// Recover returns the job owning the persisted checkpoint.
func (d *Dispatcher) Recover(ctx context.Context) (*Job, error) {
	st, err := d.deps.Store.Current(ctx)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) || errors.Is(err, checkpoint.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownKind, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return d.JobFor(st.Kind)
}

// Step recovers the active job and advances it by one step.
func (d *Dispatcher) Step(ctx context.Context, token string) (Status, error) {
	j, err := d.Recover(ctx)
	if err != nil {
		st := StatusOf(nil, d.deps.Resources())
		st.Error = err.Error()
		return st, err
	}
	return j.Step(ctx, token)
}

// Status reports the active job without advancing it.
func (d *Dispatcher) Status(ctx context.Context) (Status, error) {
	mon := d.deps.Resources()
	st, err := d.deps.Store.Current(ctx)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return StatusOf(nil, mon), nil
		}
		return StatusOf(nil, mon), fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return StatusOf(st, mon), nil
}

// Reset deletes all checkpoint state.
func (d *Dispatcher) Reset(ctx context.Context) error {
	if err := d.deps.Store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	d.logger.Info("job state reset")
	return nil
}
