package job

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// Metrics exports job progress to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	steps     *prometheus.CounterVec
	rows      *prometheus.CounterVec
	progress  *prometheus.GaugeVec
	chunk     *prometheus.GaugeVec
	degraded  *prometheus.GaugeVec
	stepTimer *prometheus.HistogramVec
}

// NewMetrics registers the job collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "steps_total",
			Help:      "Steps executed, by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "rows_processed_total",
			Help:      "Records dumped and deleted, by job kind.",
		}, []string{"kind"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "progress_percent",
			Help:      "Completion percentage of the active job.",
		}, []string{"kind"}),
		chunk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "chunk_limit",
			Help:      "Last chunk size requested from the data source.",
		}, []string{"kind"}),
		degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "low_resource_streak",
			Help:      "Records left to process at minimal chunk size.",
		}, []string{"kind"}),
		stepTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dbpurge",
			Subsystem: "job",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of one step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.rows, m.progress, m.chunk, m.degraded, m.stepTimer)
	}
	return m
}

func (m *Metrics) observeStep(kind checkpoint.Kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(kind), outcome).Inc()
	m.stepTimer.WithLabelValues(string(kind)).Observe(seconds)
}

func (m *Metrics) observeState(st *checkpoint.State, rows int64) {
	if m == nil || st == nil {
		return
	}
	k := string(st.Kind)
	if rows > 0 {
		m.rows.WithLabelValues(k).Add(float64(rows))
	}
	m.progress.WithLabelValues(k).Set(float64(Progress(st)))
	m.chunk.WithLabelValues(k).Set(float64(st.LastLimit))
	m.degraded.WithLabelValues(k).Set(float64(st.LowResourceStreak))
}
