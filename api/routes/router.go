package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shopvibe/shopvibe-backend/api/controllers"
	ordercontrollers "github.com/shopvibe/shopvibe-backend/api/controllers/orders"
	"github.com/shopvibe/shopvibe-backend/api/middleware"
	"github.com/shopvibe/shopvibe-backend/internal/orders"
	"github.com/shopvibe/shopvibe-backend/pkg/config"
	"github.com/shopvibe/shopvibe-backend/pkg/db"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/metrics"
	"github.com/shopvibe/shopvibe-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	ordersSvc orders.Service,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", metrics.Handler(registry))

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", ordercontrollers.Create(ordersSvc, logg))
		r.Get("/", ordercontrollers.List(ordersSvc, logg))
		r.Get("/lookup/{token}", ordercontrollers.Lookup(ordersSvc, logg))
		r.Get("/{orderId}", ordercontrollers.Get(ordersSvc, logg))
		r.Post("/{orderId}/settle", ordercontrollers.Settle(ordersSvc, logg))
		r.Post("/{orderId}/deliver", ordercontrollers.Deliver(ordersSvc, logg))
		r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
	})

	return r
}
