package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/security"
)

// createResponse is returned by the job creation endpoints.
type createResponse struct {
	Token string          `json:"token"`
	Kind  checkpoint.Kind `json:"kind"`
}

// stepResponse is returned by every step, on success or failure.
type stepResponse struct {
	Stats    job.Status `json:"stats"`
	Progress int        `json:"progress"`
	Ready    bool       `json:"ready"`
	Count    int64      `json:"count"`
	Done     int64      `json:"done"`
	Error    string     `json:"error"`
}

func newStepResponse(st job.Status, err error) stepResponse {
	resp := stepResponse{
		Stats:    st,
		Progress: st.Progress,
		Ready:    st.Finished,
		Count:    st.StepsPlanned,
		Done:     st.StepsDone,
		Error:    st.Error,
	}
	if err != nil && resp.Error == "" {
		resp.Error = err.Error()
	}
	return resp
}

type sitePurgeRequest struct {
	SiteID int64 `json:"site_id"`
}

type logPurgeRequest struct {
	// Until accepts RFC 3339 or a plain YYYY-MM-DD date (midnight UTC).
	Until string `json:"until"`
}

func parseUntil(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("until: want RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func (g *Gateway) handleCreateSitePurge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sitePurgeRequest
		if err := security.DecodeJSONBody(r.Body, security.DefaultMaxBodySize, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		g.createJob(w, r, checkpoint.KindSitePurge, checkpoint.Config{SiteID: req.SiteID})
	}
}

func (g *Gateway) handleCreateLogPurge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logPurgeRequest
		if err := security.DecodeJSONBody(r.Body, security.DefaultMaxBodySize, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		until, err := parseUntil(req.Until)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		g.createJob(w, r, checkpoint.KindLogPurge, checkpoint.Config{Until: until})
	}
}

func (g *Gateway) handleCreateOptimize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.createJob(w, r, checkpoint.KindOptimize, checkpoint.Config{})
	}
}

func (g *Gateway) createJob(w http.ResponseWriter, r *http.Request, kind checkpoint.Kind, cfg checkpoint.Config) {
	if err := g.limiter.Allow(security.BucketJobCreate); err != nil {
		g.auditRequest(r, security.EventRateLimit, kind, cfg.SiteID, security.BucketJobCreate)
		writeError(w, http.StatusTooManyRequests, err)
		return
	}

	token, err := g.jobs.Create(r.Context(), kind, cfg)
	if err != nil {
		g.logger.Warn("job create failed", "kind", string(kind), "error", err)
		writeError(w, statusForError(err), err)
		return
	}

	g.metrics.RecordJobCreated()
	g.auditRequest(r, security.EventJobCreate, kind, cfg.SiteID, "")
	writeJSON(w, http.StatusCreated, createResponse{Token: token, Kind: kind})
}

// handleStep advances the active job by one step. A finished job is reset
// right away so the next one can be created.
func (g *Gateway) handleStep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing token"))
			return
		}

		st, err := g.jobs.Step(r.Context(), token)
		g.metrics.RecordStep(err != nil)
		g.afterStep(r, st, err)

		code := http.StatusOK
		if err != nil {
			code = statusForError(err)
		}
		writeJSON(w, code, newStepResponse(st, err))
	}
}

// afterStep audits terminal outcomes and releases finished jobs.
func (g *Gateway) afterStep(r *http.Request, st job.Status, err error) {
	switch {
	case err != nil && !errors.Is(err, job.ErrConcurrencyViolation):
		g.auditRequest(r, security.EventJobFailure, st.Kind, 0, err.Error())
	case err == nil && st.Finished:
		g.auditRequest(r, security.EventJobFinish, st.Kind, 0, "")
		if rerr := g.jobs.Reset(r.Context()); rerr != nil {
			g.logger.Error("job reset after finish failed", "kind", string(st.Kind), "error", rerr)
		}
	}
}

func (g *Gateway) handleJobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.jobs.Status(r.Context())
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, newStepResponse(st, nil))
	}
}

func (g *Gateway) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.jobs.Reset(r.Context()); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		g.auditRequest(r, security.EventJobReset, "", 0, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) auditRequest(r *http.Request, typ security.EventType, kind checkpoint.Kind, siteID int64, detail string) {
	g.audit.Log(security.AuditEvent{
		Type:    typ,
		Actor:   actorFrom(r.Context()),
		Remote:  r.RemoteAddr,
		JobKind: string(kind),
		SiteID:  siteID,
		Detail:  detail,
	})
}

// statusForError maps job errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, job.ErrInvalidConfig), errors.Is(err, job.ErrUnknownKind) && !errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrProtectedSite):
		return http.StatusForbidden
	case errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrConcurrencyViolation):
		return http.StatusConflict
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
