package api

import "net/http"

// enginesResponse is the JSON response for GET /v1/engines.
type enginesResponse struct {
	Engines []string `json:"engines"`
	Active  string   `json:"active"`
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, enginesResponse{
		Engines: s.engines.Names(),
		Active:  s.engineName,
	})
}
