package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/veilcare/settlement-backend/internal/audit"
	"github.com/veilcare/settlement-backend/internal/chainverify"
	"github.com/veilcare/settlement-backend/internal/gateway"
	"github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/internal/ledger"
	"github.com/veilcare/settlement-backend/internal/rates"
	"github.com/veilcare/settlement-backend/internal/shielding"
	"github.com/veilcare/settlement-backend/internal/signing"
	"github.com/veilcare/settlement-backend/internal/worker"
	"github.com/veilcare/settlement-backend/pkg/bigquery"
	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/db"
	"github.com/veilcare/settlement-backend/pkg/instance"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/metrics"
	"github.com/veilcare/settlement-backend/pkg/pubsub"
	"github.com/veilcare/settlement-backend/pkg/redis"
	"github.com/veilcare/settlement-backend/pkg/square"
	"github.com/veilcare/settlement-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "settler-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "settler-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var closers []func() error

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	closers = append(closers, dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	closers = append(closers, redisClient.Close)

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	closers = append(closers, bqClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	closers = append(closers, pubsubClient.Close)

	subscription := pubsubClient.IntentsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "intents subscription", errors.New("subscription not configured"))
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.NewRegistry())

	converter, err := rates.NewConverter(cfg.Rates)
	requireResource(ctx, logg, "rate converter", err)

	chainVerifier, err := chainverify.NewVerifier(cfg.Chain, logg, settlementMetrics)
	requireResource(ctx, logg, "chain verifier", err)

	squareClient, err := square.NewClient(ctx, cfg.Gateway, logg)
	requireResource(ctx, logg, "square", err)

	gatewayVerifier, err := gateway.NewVerifier(squareClient)
	requireResource(ctx, logg, "gateway verifier", err)

	signer, err := signing.NewCoordinator(cfg.Signer, logg)
	requireResource(ctx, logg, "signing coordinator", err)

	shielder, err := shielding.NewExecutor(cfg.Relay, cfg.Settlement, gcsClient, logg, settlementMetrics)
	requireResource(ctx, logg, "privacy transfer executor", err)

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient)
	requireResource(ctx, logg, "balance ledger", err)

	lease, err := intents.NewRedisLease(redisClient, cfg.Settlement.LockTTL)
	requireResource(ctx, logg, "intent lease", err)

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
	requireResource(ctx, logg, "intent solver", err)

	recorder, err := audit.NewRecorder(bqClient, logg)
	requireResource(ctx, logg, "audit recorder", err)

	service, err := worker.NewService(subscription, solver, intentRepo, recorder, logg)
	requireResource(ctx, logg, "settlement worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})
	logg.Info(runCtx, "settlement worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "settlement worker failed", err)
		_ = closeAll(closers)
		os.Exit(1)
	}

	if err := closeAll(closers); err != nil {
		logg.Error(runCtx, "closing resources", err)
	}
	logg.Info(runCtx, "settlement worker stopped")
}

func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
