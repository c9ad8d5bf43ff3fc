package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redcentre/carbonsvc/internal/batch"
)

// startBatchResponse is the JSON response for POST /v1/batches.
type startBatchResponse struct {
	ID          string `json:"id"`
	Parallelism int    `json:"parallelism"`
}

// cancelBatchResponse is the JSON response for DELETE /v1/batches/{id}.
type cancelBatchResponse struct {
	ID              string `json:"id"`
	CancelRequested bool   `json:"cancel_requested"`
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req batch.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if len(req.Reports) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one report is required")
		return
	}
	if _, ok := s.sessions.Find(req.SessionID); !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	id, err := s.batches.Start(req)
	if err != nil {
		s.logger.Error("start batch", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start batch")
		return
	}

	activity := fmt.Sprintf("Batch %d reports", len(req.Reports))
	if err := s.sessions.UpdateActivity(r.Context(), req.SessionID, activity); err != nil {
		s.logger.Error("update session activity", "session_id", req.SessionID, "error", err)
	}

	s.writeJSON(w, http.StatusAccepted, startBatchResponse{
		ID:          id,
		Parallelism: s.batches.ClampParallelism(req.Parallelism),
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := s.batches.Query(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.batches.Cancel(id) {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	s.writeJSON(w, http.StatusAccepted, cancelBatchResponse{ID: id, CancelRequested: true})
}

func (s *Server) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ch, unsub, ok := s.batches.Subscribe(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	defer unsub()

	eventStreamsOpen.Inc()
	defer eventStreamsOpen.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// Batch finished; the final result is fetched with GET.
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEEvent(w, "progress", msg); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event. Multi-line data is split so that
// each segment gets its own "data:" prefix.
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}
