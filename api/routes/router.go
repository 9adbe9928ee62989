package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargoline/tracking-backend/api/controllers"
	"github.com/cargoline/tracking-backend/api/middleware"
	"github.com/cargoline/tracking-backend/internal/optimizer"
	internalroutes "github.com/cargoline/tracking-backend/internal/routes"
	"github.com/cargoline/tracking-backend/internal/tracking"
	"github.com/cargoline/tracking-backend/pkg/config"
	"github.com/cargoline/tracking-backend/pkg/logger"
)

// Dependencies carries everything the router needs behind small interfaces.
type Dependencies struct {
	Config    *config.Config
	Logger    *logger.Logger
	Pingers   map[string]controllers.Pinger
	Optimizer optimizer.Service
	Routes    internalroutes.Service
	Tracker   tracking.Service
	Metrics   http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.Pingers))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/routes", func(r chi.Router) {
			r.Post("/", controllers.CreateRoute(deps.Optimizer, deps.Logger))
			r.Route("/{routeId}", func(r chi.Router) {
				r.Get("/", controllers.RouteDetail(deps.Routes, deps.Logger))
				r.Post("/activate", controllers.RouteActivate(deps.Routes, deps.Logger))
				r.Post("/cancel", controllers.RouteCancel(deps.Routes, deps.Logger))
				r.Get("/delays", controllers.RouteDelays(deps.Routes, deps.Logger))
			})
		})

		r.Post("/carriers/{carrierId}/location", controllers.CarrierLocation(deps.Tracker, deps.Logger))
	})

	return r
}
