package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shineIB/flowsync/internal/api"
	"github.com/shineIB/flowsync/internal/metrics"
	"github.com/shineIB/flowsync/internal/middleware"
	"github.com/shineIB/flowsync/internal/models"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.Root)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/api/v1/diagram", h.Diagram)
	r.With(middleware.ValidateRequest[*models.AnalyzeRequest]()).Post("/api/v1/analyze", h.Analyze)

	r.Get("/ws/{client_id}", h.CollabWS)

	return r
}
