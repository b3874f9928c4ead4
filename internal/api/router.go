package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/coursegen-api/internal/api/middleware"
	"github.com/phrazzld/coursegen-api/internal/api/shared"
)

// NewRouter builds the HTTP routing tree. The health and metrics
// endpoints are open; everything under /courses requires a caller
// identity.
func NewRouter(handler *CourseHandler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		shared.RespondWithJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/courses", func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Post("/", handler.CreateCourse)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetCourse)
			r.Post("/regenerate-outline", handler.RegenerateOutline)
			r.Route("/lessons/{lessonID}", func(r chi.Router) {
				r.Post("/view", handler.ViewLesson)
				r.Post("/blocks/{blockID}/regenerate", handler.RegenerateBlock)
			})
		})
	})

	return r
}
