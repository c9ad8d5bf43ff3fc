package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redcentre/carbonsvc/internal/model"
	"github.com/redcentre/carbonsvc/internal/session"
)

// startSessionRequest is the JSON body for POST /v1/sessions.
type startSessionRequest struct {
	SessionID string              `json:"session_id"`
	UserID    string              `json:"user_id"`
	UserName  string              `json:"user_name"`
	Roles     []string            `json:"roles"`
	Customers []model.CustomerKey `json:"customers"`
}

type startSessionResponse struct {
	Session  *model.SessionRecord `json:"session"`
	Replaced bool                 `json:"replaced"`
}

type endSessionResponse struct {
	SessionID  string `json:"session_id"`
	BytesFreed int64  `json:"bytes_freed"`
}

type listSessionsResponse struct {
	Sessions []*model.SessionRecord `json:"sessions"`
	Total    int                    `json:"total"`
}

// sessionStateBody is the JSON body of PUT and GET /v1/sessions/{id}/state.
type sessionStateBody struct {
	SessionID string   `json:"session_id,omitempty"`
	State     []string `json:"state"`
}

type setJobRequest struct {
	Customer string `json:"customer"`
	Job      string `json:"job"`
	Vartree  string `json:"vartree"`
}

type setReportRequest struct {
	Name string `json:"name"`
}

// cleanupRequest is the optional JSON body of POST /v1/sessions/cleanup.
// OlderThan is a Go duration such as "72h".
type cleanupRequest struct {
	OlderThan string `json:"older_than"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	rec, replaced, err := s.sessions.Start(r.Context(), session.StartRequest{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Roles:     req.Roles,
		Customers: req.Customers,
	})
	if err != nil {
		s.logger.Error("start session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	status := http.StatusCreated
	if replaced {
		status = http.StatusOK
	}
	s.writeJSON(w, status, startSessionResponse{Session: rec, Replaced: replaced})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var recs []*model.SessionRecord
	switch q := r.URL.Query(); {
	case q.Get("user_id") != "":
		recs = s.sessions.FindForUser(q.Get("user_id"))
	case q.Get("user_name") != "":
		recs = s.sessions.FindForUserName(q.Get("user_name"))
	default:
		recs = s.sessions.List()
	}

	s.writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: recs, Total: len(recs)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.sessions.Find(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	freed, err := s.sessions.End(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("end session", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	s.writeJSON(w, http.StatusOK, endSessionResponse{SessionID: id, BytesFreed: freed})
}

func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Find(id); !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var body sessionStateBody
	if !s.decodeJSON(w, r, &body) {
		return
	}

	if err := s.cache.Save(r.Context(), id, body.State); err != nil {
		s.logger.Error("save session state", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save session state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Find(id); !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	state, err := s.cache.Load(r.Context(), id)
	if err != nil {
		s.logger.Error("load session state", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session state")
		return
	}
	s.writeJSON(w, http.StatusOK, sessionStateBody{SessionID: id, State: state})
}

func (s *Server) handleSetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setJobRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.writeSessionUpdate(w, r, id, s.sessions.SetCustomerJob(r.Context(), id, req.Customer, req.Job, req.Vartree))
}

func (s *Server) handleSetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setReportRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.writeSessionUpdate(w, r, id, s.sessions.SetReportName(r.Context(), id, req.Name))
}

// writeSessionUpdate answers a session mutation with the updated record.
func (s *Server) writeSessionUpdate(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("update session", "session_id", id, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	rec, _ := s.sessions.Find(id)
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	olderThan := s.sessionMaxIdle
	if r.ContentLength != 0 {
		var req cleanupRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		if req.OlderThan != "" {
			d, err := time.ParseDuration(req.OlderThan)
			if err != nil || d <= 0 {
				s.writeError(w, http.StatusBadRequest, "older_than must be a positive duration")
				return
			}
			olderThan = d
		}
	}

	res, err := s.sessions.Cleanup(r.Context(), olderThan)
	if err != nil {
		s.logger.Error("cleanup sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to clean up sessions")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
