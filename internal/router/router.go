package router

import (
	"rsm-inventory-bot/internal/handler"
	"rsm-inventory-bot/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the handlers and auth settings of the operator API.
type Config struct {
	Handler        *handler.Handler
	SummaryHandler *handler.SummaryHandler
	AdminHandler   *handler.AdminHandler
	APIKeys        []string
}

// New builds the operator HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	auth := middleware.APIKeyAuth(cfg.APIKeys)

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.SummaryHandler != nil {
			r.Get("/summary", cfg.SummaryHandler.GetLast)
			r.With(auth).Post("/summary", cfg.SummaryHandler.Query)
		}

		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth)
				r.Get("/stats", cfg.AdminHandler.GetStats)
			})
		}
	})

	return r
}
