package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers groups everything mounted on the router.
type Handlers struct {
	Health    *HealthHandler
	Documents *DocumentHandler
	Queries   *QueryHandler
	Events    *EventsHandler
}

// RegisterRoutes mounts the API on r. requestTimeout > 0 bounds every plain HTTP route;
// the websocket stream is mounted outside that bound.
func RegisterRoutes(r chi.Router, h Handlers, requestTimeout time.Duration) {
	r.Get("/", h.Health.Root)

	r.Route("/api/v1", func(api chi.Router) {
		if h.Events != nil {
			api.Handle("/query/events", h.Events)
		}

		api.Group(func(g chi.Router) {
			if requestTimeout > 0 {
				g.Use(middleware.Timeout(requestTimeout))
			}
			g.Get("/health", h.Health.Health)

			g.Post("/documents/upload", h.Documents.UploadDocuments)
			g.Get("/documents", h.Documents.ListDocuments)
			g.Get("/documents/{id}", h.Documents.GetDocument)
			g.Delete("/documents/{id}", h.Documents.DeleteDocument)
			g.Get("/metrics", h.Documents.Metrics)

			g.Post("/queries", h.Queries.SubmitQuery)
			g.Post("/hackrx/run", h.Queries.Run)
			g.Get("/query/state", h.Queries.State)
		})
	})
}
