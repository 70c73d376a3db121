package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleProgress streams a job's progress events over a websocket. The
// connection closes after the terminal event, or when the client goes away.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid job id", common.ErrInvalidInput))
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws.upgrade.failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	// A job that already finished gets a single synthetic terminal event.
	if job.Status != constants.JobStatusProcessing {
		step := constants.StepCompleted
		ev := progress.Event{
			JobID:       id.String(),
			Status:      job.Status,
			CurrentStep: step,
			Processed:   job.Processed,
			Total:       job.Total,
			Percentage:  100,
		}
		_ = conn.WriteJSON(ev)
		return
	}

	ch := s.hub.Subscribe(id.String())
	defer s.hub.Unsubscribe(id.String(), ch)

	// Reader goroutine detects client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("ws.write.failed", "job_id", id, "error", err)
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}
