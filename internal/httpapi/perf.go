package httpapi

import "net/http"

func (s *Server) handlePerfDriver(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Metrics.DriverPerf())
}
