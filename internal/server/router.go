package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/praxis-ed/curio/internal/api"
	"github.com/praxis-ed/curio/internal/api/handlers"
	"github.com/praxis-ed/curio/internal/api/middleware"
)

type RouterConfig struct {
	IngestHandler *handlers.IngestHandler
	SearchHandler *handlers.SearchHandler
	BooksHandler  *handlers.BooksHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.Identity)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", cfg.IngestHandler.Ingest)
		r.Post("/search", cfg.SearchHandler.Search)
		r.Get("/books", cfg.BooksHandler.List)
	})

	return r
}
