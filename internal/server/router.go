package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/revisehq/cardsmith/internal/api"
	"github.com/revisehq/cardsmith/internal/api/handlers"
	"github.com/revisehq/cardsmith/internal/api/middleware"
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	JobHandler      *handlers.JobHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Register)
		r.Get("/", cfg.DocumentHandler.List)
		r.Get("/{id}", cfg.DocumentHandler.Get)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", cfg.JobHandler.Start)
		r.Get("/", cfg.JobHandler.List)
		r.Get("/{id}", cfg.JobHandler.Get)
		r.Get("/{id}/logs", cfg.JobHandler.Logs)
		r.Get("/{id}/topics", cfg.JobHandler.Topics)
	})

	return r
}
