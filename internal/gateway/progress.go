package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/dbpurge/internal/job"
)

const progressWriteTimeout = 10 * time.Second

// handleProgress drives the job bound to ?token= step by step and pushes
// every status to the client as a JSON text message. The stream ends when
// the job finishes, a step fails or the client goes away. A finished job
// is reset before the connection closes.
func (g *Gateway) handleProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing token"))
			return
		}

		// The stream lives as long as the job.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		// Clients only listen; CloseRead handles control frames and cancels
		// ctx when the peer closes.
		ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
		defer cancel()

		send := func(resp stepResponse) error {
			data, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			wctx, wcancel := context.WithTimeout(ctx, progressWriteTimeout)
			defer wcancel()
			return conn.Write(wctx, websocket.MessageText, data)
		}

		observe := func(st job.Status) {
			g.metrics.RecordStep(st.Error != "")
			if st.Error != "" || st.Finished {
				// The terminal status is sent after Drive returns.
				return
			}
			if err := send(newStepResponse(st, nil)); err != nil {
				g.logger.Warn("progress write failed", "error", err)
				cancel()
			}
		}

		st, err := g.jobs.Drive(ctx, token, job.DriveOptions{Pause: g.config.ProgressPause}, observe)
		if ctx.Err() != nil {
			g.logger.Info("progress stream closed by client")
			return
		}
		g.afterStep(r, st, err)
		if err := send(newStepResponse(st, err)); err != nil {
			g.logger.Warn("progress write failed", "error", err)
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}
