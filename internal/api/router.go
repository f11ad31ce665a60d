// Package api builds the HTTP router for the tagging service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/imagetagger/internal/api/middleware"
	"github.com/kiranshivaraju/imagetagger/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	StartRunHandler    http.HandlerFunc
	ListRunsHandler    http.HandlerFunc
	GetRunHandler      http.HandlerFunc
	PauseRunHandler    http.HandlerFunc
	ResumeRunHandler   http.HandlerFunc
	StopRunHandler     http.HandlerFunc
	ListResultsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/runs", orNotImplemented(deps.StartRunHandler))
		r.Get("/api/v1/runs", orNotImplemented(deps.ListRunsHandler))
		r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.GetRunHandler))

		r.Post("/api/v1/runs/{runID}/pause", orNotImplemented(deps.PauseRunHandler))
		r.Post("/api/v1/runs/{runID}/resume", orNotImplemented(deps.ResumeRunHandler))
		r.Post("/api/v1/runs/{runID}/stop", orNotImplemented(deps.StopRunHandler))

		r.Get("/api/v1/runs/{runID}/results", orNotImplemented(deps.ListResultsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
