package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/store"
)

// @Summary Stream operation progress
// @Description SSE stream of status snapshots. A "progress" event is sent whenever the snapshot changes and a final event named after the terminal state closes the stream.
// @Tags Operations
// @Produce text/event-stream
// @Param task_id path string true "Operation ID"
// @Success 200 "SSE progress stream"
// @Failure 404 {object} ErrorResponse
// @Router /operations/{task_id}/progress [get]
func (s *Server) handleOperationProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	st, err := s.engine.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "SSE_UNSUPPORTED")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeProgressEvent(w, st)
	flusher.Flush()
	if store.IsTerminal(st.State) {
		return
	}

	ticker := time.NewTicker(s.cfg.ProgressInterval)
	defer ticker.Stop()
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	last := *st
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		case <-ticker.C:
			st, err := s.engine.Status(ctx, id)
			if err != nil {
				return
			}
			if st.Current == last.Current && st.Status == last.Status && st.State == last.State {
				continue
			}
			last = *st
			writeProgressEvent(w, st)
			flusher.Flush()
			if store.IsTerminal(st.State) {
				return
			}
		}
	}
}

func writeProgressEvent(w http.ResponseWriter, st *engine.Status) {
	evType := "progress"
	if store.IsTerminal(st.State) {
		evType = st.State
	}
	body, err := json.Marshal(st)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", st.Current, evType, body)
}
