package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/trigger", s.app.TriggerHandler.TriggerHandler) // POST - start an imagine job
	mux.HandleFunc("/health", s.app.TriggerHandler.HealthHandler)   // GET - liveness

	return mux
}
