package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/dbpurge/internal/config"
)

// Applier receives every configuration that loaded and validated.
type Applier interface {
	ApplyConfig(cfg *config.Config) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(cfg *config.Config) error

// ApplyConfig implements Applier.
func (f ApplierFunc) ApplyConfig(cfg *config.Config) error { return f(cfg) }

// Handler loads the configuration file and hands it to the appliers. A
// file that fails to load or validate is rejected as a whole and the
// running settings stay in place.
type Handler struct {
	path     string
	logger   *slog.Logger
	appliers []Applier

	mu sync.Mutex
}

// NewHandler creates a reload handler for the file at path.
func NewHandler(path string, logger *slog.Logger, appliers ...Applier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{path: path, logger: logger, appliers: appliers}
}

// HandleReload loads, validates and applies the configuration file.
// Every applier runs even when an earlier one fails.
func (h *Handler) HandleReload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	cfg, err := config.Load(h.path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.apply(cfg)
}

func (h *Handler) apply(cfg *config.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, a := range h.appliers {
		if err := a.ApplyConfig(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("applying config: %w", err)
	}

	h.logger.Info("configuration reloaded successfully", "path", h.path)
	return nil
}
