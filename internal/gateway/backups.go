package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/dbpurge/internal/dump"
	"github.com/flemzord/dbpurge/internal/security"
)

var errNoBackups = errors.New("backups not available")

func (g *Gateway) handleListBackups() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.backups == nil {
			writeError(w, http.StatusServiceUnavailable, errNoBackups)
			return
		}
		list, err := g.backups.List()
		if err != nil {
			g.logger.Error("listing backups failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleDownloadBackup streams one artifact as an attachment.
func (g *Gateway) handleDownloadBackup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.backups == nil {
			writeError(w, http.StatusServiceUnavailable, errNoBackups)
			return
		}
		if err := g.limiter.Allow(security.BucketDownload); err != nil {
			g.auditRequest(r, security.EventRateLimit, "", 0, security.BucketDownload)
			writeError(w, http.StatusTooManyRequests, err)
			return
		}

		a, err := g.backups.Lookup(chi.URLParam(r, "name"))
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, dump.ErrNotFound) {
				code = http.StatusNotFound
			}
			writeError(w, code, err)
			return
		}
		rc, err := a.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		defer rc.Close()

		// Large artifacts outlive the server write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", a.MIME)
		h.Set("Content-Length", strconv.FormatInt(a.Size, 10))
		h.Set("Content-Disposition", `attachment; filename="`+a.Name+`"; modification-date="`+a.Modified.UTC().Format(http.TimeFormat)+`"`)
		w.WriteHeader(http.StatusOK)

		n, err := io.Copy(w, rc)
		if err != nil {
			g.logger.Warn("backup download interrupted", "artifact", a.Name, "bytes", n, "error", err)
			return
		}
		g.metrics.RecordDownload()
		g.audit.Log(security.AuditEvent{
			Type:     security.EventBackupDownload,
			Actor:    actorFrom(r.Context()),
			Remote:   r.RemoteAddr,
			Artifact: a.Name,
		})
	}
}
