package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.scopeMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{handle}", s.handleGetDevice)
		})
	})

	return r
}

// handleHealth reports whether the driver's dispatch loop is still serving.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-s.driver.Done():
		reason := "stopped"
		if err := s.driver.Err(); err != nil {
			reason = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "stopped",
			"code":    ErrCodeUnavailable,
			"module":  s.driver.ModuleName(),
			"reason":  reason,
			"version": s.version,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"module":  s.driver.ModuleName(),
			"version": s.version,
		})
	}
}
