package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metrics.middleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	// Job and backup endpoints require auth. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Get("/ws/jobs/progress", g.handleProgress())
			r.Route("/api", func(r chi.Router) {
				r.Post("/jobs/site-purge", g.handleCreateSitePurge())
				r.Post("/jobs/log-purge", g.handleCreateLogPurge())
				r.Post("/jobs/optimize", g.handleCreateOptimize())
				r.Post("/jobs/step", g.handleStep())
				r.Get("/jobs", g.handleJobStatus())
				r.Delete("/jobs", g.handleReset())
				r.Get("/backups", g.handleListBackups())
				r.Get("/backups/{name}", g.handleDownloadBackup())
			})
		})
	}

	return r
}
