package api

import (
	"net/http"

	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/session"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Batches  batch.Stats        `json:"batches"`
	Sessions int                `json:"sessions"`
	Cache    session.CacheStats `json:"cache"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Batches:  s.batches.Stats(),
		Sessions: s.sessions.Len(),
		Cache:    s.cache.Stats(),
	})
}
