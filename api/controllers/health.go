package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/veilcare/settlement-backend/api/responses"
	"github.com/veilcare/settlement-backend/pkg/bigquery"
	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/db"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/redis"
	"github.com/veilcare/settlement-backend/pkg/storage/gcs"
)

const envHeader = "X-VeilCare-Env"

const readinessTimeout = 5 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes every wired dependency. A nil pinger is treated as not
// configured and skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger, gcsP gcs.Pinger, bigqueryP bigquery.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		ready := true

		probe := func(name string, ping func(context.Context) error) {
			if err := ping(ctx); err != nil {
				checks[name] = "unavailable"
				ready = false
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+name, err)
				}
				return
			}
			checks[name] = "ok"
		}

		if dbP != nil {
			probe("postgres", dbP.Ping)
		}
		if redisP != nil {
			probe("redis", redisP.Ping)
		}
		if gcsP != nil {
			probe("gcs", gcsP.Ping)
		}
		if bigqueryP != nil {
			probe("bigquery", bigqueryP.Ping)
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": checks,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}
