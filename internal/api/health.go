package api

import "net/http"

// healthResponse is the JSON response for GET /healthz.
type healthResponse struct {
	Status        string `json:"status"`
	Engine        string `json:"engine,omitempty"`
	ActiveBatches int    `json:"active_batches"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Engine:        s.engineName,
		ActiveBatches: s.batches.Stats().Active,
	})
}
