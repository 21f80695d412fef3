// Package app provides the shared entry points of the dbpurge binary: the
// engine wiring used by one-shot commands and the long-running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

const telemetryShutdownTimeout = 5 * time.Second

// RunParams configures the server loop.
type RunParams struct {
	Params

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// Run opens the engine, starts the HTTP gateway and the maintenance
// scheduler, and blocks until ctx is done or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) (err error) {
	e, err := Open(ctx, params.Params)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	shutdown, err := setupTelemetry(ctx, e.Config.Telemetry, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if serr := shutdown(sctx); serr != nil {
			e.Logger.Warn("telemetry shutdown failed", "error", serr)
		}
	}()

	jobs, err := wireScheduler(e)
	if err != nil {
		return err
	}
	if err := loadGateway(e); err != nil {
		return err
	}
	hotReload := wireReload(e)

	logActiveJob(ctx, e)
	e.Logger.Info("dbpurge starting",
		"version", params.Version,
		"commit", params.Commit,
		"scheduled_jobs", jobs,
		"hot_reload", hotReload)

	return e.App.Run(ctx)
}

// logActiveJob reports a job left over by a previous run. It resumes on
// the next step with the same token.
func logActiveJob(ctx context.Context, e *Engine) {
	st, err := e.Dispatcher.Status(ctx)
	if err != nil {
		e.Logger.Warn("reading active job failed", "error", err)
		return
	}
	if st.Kind == "" || st.Kind == checkpoint.KindNone {
		return
	}
	e.Logger.Info("active job found",
		"kind", string(st.Kind),
		"phase", string(st.Phase),
		"progress", st.Progress)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/dbpurge/dbpurge.yaml → ~/.config/dbpurge/dbpurge.yaml → ./dbpurge.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "dbpurge", "dbpurge.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "dbpurge", "dbpurge.yaml"))
	}

	candidates = append(candidates, "dbpurge.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/dbpurge if set, otherwise ~/.local/share/dbpurge.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "dbpurge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "dbpurge")
}
