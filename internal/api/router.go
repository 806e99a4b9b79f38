package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"agent-bff/internal/middleware"
)

// RouterOptions configures the middleware stack. Nil Auth or RateLimit
// disables that layer.
type RouterOptions struct {
	Auth        func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler
	CORSOrigins []string
}

// NewRouter builds the HTTP surface: /healthz is public, everything else lives
// under /v1 behind auth.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		h.Routes(r)
	})
	return r
}
