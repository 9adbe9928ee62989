package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cargoline/tracking-backend/internal/consumers/locations"
	"github.com/cargoline/tracking-backend/internal/delays"
	"github.com/cargoline/tracking-backend/internal/routeplan"
	"github.com/cargoline/tracking-backend/internal/tracking"
	"github.com/cargoline/tracking-backend/pkg/config"
	"github.com/cargoline/tracking-backend/pkg/db"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/metrics"
	"github.com/cargoline/tracking-backend/pkg/outbox"
	"github.com/cargoline/tracking-backend/pkg/pubsub"
	"github.com/cargoline/tracking-backend/pkg/redis"
	"github.com/cargoline/tracking-backend/pkg/routing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "tracking-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "tracking-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer pubsubClient.Close()

	routingClient, err := routing.NewClient(cfg.Routing.APIKey,
		routing.WithBaseURL(cfg.Routing.BaseURL),
		routing.WithProfile(cfg.Routing.Profile),
		routing.WithHTTPClient(&http.Client{Timeout: cfg.Routing.RequestTimeout}),
	)
	if err != nil {
		logg.Error(ctx, "failed to create routing client", err)
		os.Exit(1)
	}

	trackingMetrics := metrics.NewTrackingMetrics(prometheus.NewRegistry())

	calculator, err := routeplan.NewCalculator(routingClient, trackingMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create route calculator", err)
		os.Exit(1)
	}
	detector, err := delays.NewDetector(calculator)
	if err != nil {
		logg.Error(ctx, "failed to create delay detector", err)
		os.Exit(1)
	}
	locker, err := tracking.NewCarrierLock(redisClient, cfg.Tracking.CarrierLockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create carrier lock", err)
		os.Exit(1)
	}

	trackingService, err := tracking.NewService(
		tracking.NewRepository(dbClient.DB()),
		dbClient,
		detector,
		locker,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		trackingMetrics,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create tracking service", err)
		os.Exit(1)
	}

	consumer, err := locations.NewConsumer(trackingService, pubsubClient.LocationSubscription(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create location consumer", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "starting tracking worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "tracking worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "tracking worker shut down gracefully")
}
