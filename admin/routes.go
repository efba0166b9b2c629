package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the admin API. metrics is mounted at /metrics when non-nil.
func NewRouter(handlers *AdminHandlers, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", handlers.handleStatus)
	r.Get("/subscriber", handlers.handleSubscriber)
	r.Get("/healthz", handlers.handleHealth)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	log.Info().Bool("metrics", metrics != nil).Msg("Admin endpoints enabled")
	return r
}
