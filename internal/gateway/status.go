package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/dbpurge/internal/cron"
	"github.com/flemzord/dbpurge/internal/job"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime  time.Duration   `json:"uptime_seconds"`
	Metrics MetricsSnapshot `json:"metrics"`
	Job     job.Status      `json:"job"`
	Backups int             `json:"backups"`

	Schedule []cron.JobState `json:"schedule,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:  time.Since(g.startedAt).Truncate(time.Second),
			Metrics: g.metrics.Snapshot(),
		}

		st, err := g.jobs.Status(r.Context())
		if err != nil {
			st.Error = err.Error()
		}
		resp.Job = st

		if g.backups != nil {
			if list, err := g.backups.List(); err == nil {
				resp.Backups = len(list)
			}
		}

		if g.schedules != nil {
			resp.Schedule = g.schedules.Jobs()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
