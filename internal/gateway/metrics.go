package gateway

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests    atomic.Int64
	serverErrs  atomic.Int64
	jobsCreated atomic.Int64
	steps       atomic.Int64
	stepErrors  atomic.Int64
	downloads   atomic.Int64
}

// RecordJobCreated records a created job.
func (m *Metrics) RecordJobCreated() {
	m.jobsCreated.Add(1)
}

// RecordStep records one executed step.
func (m *Metrics) RecordStep(failed bool) {
	m.steps.Add(1)
	if failed {
		m.stepErrors.Add(1)
	}
}

// RecordDownload records a completed artifact download.
func (m *Metrics) RecordDownload() {
	m.downloads.Add(1)
}

// middleware counts requests and 5xx responses.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		m.requests.Add(1)
		if ww.Status() >= http.StatusInternalServerError {
			m.serverErrs.Add(1)
		}
	})
}

// Register exposes the counters on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "dbpurge",
			Subsystem: "gateway",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	return errors.Join(
		reg.Register(counter("requests_total", "HTTP requests served.", &m.requests)),
		reg.Register(counter("server_errors_total", "HTTP responses with a 5xx status.", &m.serverErrs)),
		reg.Register(counter("jobs_created_total", "Jobs created through the API.", &m.jobsCreated)),
		reg.Register(counter("steps_total", "Steps executed through the API.", &m.steps)),
		reg.Register(counter("step_errors_total", "Steps that reported an error.", &m.stepErrors)),
		reg.Register(counter("downloads_total", "Backup artifacts downloaded.", &m.downloads)),
	)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:     m.requests.Load(),
		ServerErrors: m.serverErrs.Load(),
		JobsCreated:  m.jobsCreated.Load(),
		Steps:        m.steps.Load(),
		StepErrors:   m.stepErrors.Load(),
		Downloads:    m.downloads.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests     int64 `json:"requests"`
	ServerErrors int64 `json:"server_errors"`
	JobsCreated  int64 `json:"jobs_created"`
	Steps        int64 `json:"steps"`
	StepErrors   int64 `json:"step_errors"`
	Downloads    int64 `json:"downloads"`
}
