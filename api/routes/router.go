package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veilcare/settlement-backend/api/controllers"
	intentcontrollers "github.com/veilcare/settlement-backend/api/controllers/intents"
	"github.com/veilcare/settlement-backend/api/middleware"
	internalintents "github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/bigquery"
	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/db"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/redis"
	"github.com/veilcare/settlement-backend/pkg/storage/gcs"
)

// Deps carries everything the router wires into handlers. Pingers may be nil
// when the corresponding backend is not configured.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	GCS      gcs.Pinger
	BigQuery bigquery.Pinger

	Intents internalintents.Service
	Solver  internalintents.Solver

	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis, deps.GCS, deps.BigQuery))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/intents", func(r chi.Router) {
		r.Post("/", intentcontrollers.Create(deps.Intents, logg))
		r.Get("/", intentcontrollers.List(deps.Intents, logg))
		r.Get("/{intentId}", intentcontrollers.Detail(deps.Intents, logg))
		r.Post("/{intentId}/process", intentcontrollers.Process(deps.Intents, deps.Solver, logg))
	})

	return r
}
