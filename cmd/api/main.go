package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/veilcare/settlement-backend/api/routes"
	"github.com/veilcare/settlement-backend/internal/chainverify"
	"github.com/veilcare/settlement-backend/internal/gateway"
	"github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/internal/ledger"
	"github.com/veilcare/settlement-backend/internal/rates"
	"github.com/veilcare/settlement-backend/internal/shielding"
	"github.com/veilcare/settlement-backend/internal/signing"
	"github.com/veilcare/settlement-backend/pkg/bigquery"
	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/db"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/metrics"
	"github.com/veilcare/settlement-backend/pkg/migrate"
	"github.com/veilcare/settlement-backend/pkg/pubsub"
	"github.com/veilcare/settlement-backend/pkg/redis"
	"github.com/veilcare/settlement-backend/pkg/square"
	"github.com/veilcare/settlement-backend/pkg/storage/gcs"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()
	var closers []func() error

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(logg, "database", err)
	closers = append(closers, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		requireResource(logg, "dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(logg, "redis", err)
	closers = append(closers, redisClient.Close)

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(logg, "gcs", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(logg, "bigquery", err)
	closers = append(closers, bqClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(logg, "pubsub", err)
	closers = append(closers, pubsubClient.Close)

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	converter, err := rates.NewConverter(cfg.Rates)
	requireResource(logg, "rate converter", err)

	chainVerifier, err := chainverify.NewVerifier(cfg.Chain, logg, settlementMetrics)
	requireResource(logg, "chain verifier", err)

	squareClient, err := square.NewClient(ctx, cfg.Gateway, logg)
	requireResource(logg, "square", err)

	gatewayVerifier, err := gateway.NewVerifier(squareClient)
	requireResource(logg, "gateway verifier", err)

	signer, err := signing.NewCoordinator(cfg.Signer, logg)
	requireResource(logg, "signing coordinator", err)

	shielder, err := shielding.NewExecutor(cfg.Relay, cfg.Settlement, gcsClient, logg, settlementMetrics)
	requireResource(logg, "privacy transfer executor", err)

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient)
	requireResource(logg, "balance ledger", err)

	lease, err := intents.NewRedisLease(redisClient, cfg.Settlement.LockTTL)
	requireResource(logg, "intent lease", err)

	intentRepo := intents.NewRepository(dbClient.DB())

	solver, err := intents.NewSolver(intents.SolverDeps{
		Repo:     intentRepo,
		Ledger:   ledgerService,
		Rates:    converter,
		Chain:    chainVerifier,
		Gateway:  gatewayVerifier,
		Signer:   signer,
		Shielder: shielder,
		Lease:    lease,
		Logger:   logg,
		Metrics:  settlementMetrics,
	})
	requireResource(logg, "intent solver", err)

	publisher, err := intents.NewPublisher(pubsubClient.IntentsPublisher())
	requireResource(logg, "process trigger publisher", err)

	intentService, err := intents.NewService(intentRepo, publisher, logg)
	requireResource(logg, "intent service", err)

	handler := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		GCS:      gcsClient,
		BigQuery: bqClient,
		Intents:  intentService,
		Solver:   solver,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown", err)
		}
	}

	if err := closeAll(closers); err != nil {
		logg.Error(runCtx, "closing resources", err)
	}
	logg.Info(runCtx, "api server stopped")
}

func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "resource not working: "+resource, err)
	os.Exit(1)
}
