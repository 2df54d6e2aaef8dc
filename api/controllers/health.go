package controllers

import (
	"net/http"

	"github.com/shopvibe/shopvibe-backend/api/responses"
	"github.com/shopvibe/shopvibe-backend/pkg/config"
	"github.com/shopvibe/shopvibe-backend/pkg/db"
	pkgerrors "github.com/shopvibe/shopvibe-backend/pkg/errors"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ShopVibe-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, redis. A failed ping
// surfaces as CodeDependency so load balancers stop routing to this instance.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ShopVibe-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
