package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apicontrollers "github.com/cargoline/tracking-backend/api/controllers"
	"github.com/cargoline/tracking-backend/api/routes"
	"github.com/cargoline/tracking-backend/internal/delays"
	"github.com/cargoline/tracking-backend/internal/optimizer"
	internalroutes "github.com/cargoline/tracking-backend/internal/routes"
	"github.com/cargoline/tracking-backend/internal/routeplan"
	"github.com/cargoline/tracking-backend/internal/tracking"
	"github.com/cargoline/tracking-backend/pkg/config"
	"github.com/cargoline/tracking-backend/pkg/db"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/metrics"
	"github.com/cargoline/tracking-backend/pkg/migrate"
	"github.com/cargoline/tracking-backend/pkg/outbox"
	"github.com/cargoline/tracking-backend/pkg/redis"
	"github.com/cargoline/tracking-backend/pkg/routing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	routingClient, err := routing.NewClient(cfg.Routing.APIKey,
		routing.WithBaseURL(cfg.Routing.BaseURL),
		routing.WithProfile(cfg.Routing.Profile),
		routing.WithHTTPClient(&http.Client{Timeout: cfg.Routing.RequestTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create routing client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	trackingMetrics := metrics.NewTrackingMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	optimizerService, err := optimizer.NewService(
		optimizer.NewRepository(dbClient.DB()),
		dbClient,
		routingClient,
		cfg.Fuel,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create optimizer service", err)
		os.Exit(1)
	}

	routesService, err := internalroutes.NewService(
		internalroutes.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create routes service", err)
		os.Exit(1)
	}

	calculator, err := routeplan.NewCalculator(routingClient, trackingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create route calculator", err)
		os.Exit(1)
	}
	detector, err := delays.NewDetector(calculator)
	if err != nil {
		logg.Error(context.Background(), "failed to create delay detector", err)
		os.Exit(1)
	}
	locker, err := tracking.NewCarrierLock(redisClient, cfg.Tracking.CarrierLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create carrier lock", err)
		os.Exit(1)
	}
	trackingService, err := tracking.NewService(
		tracking.NewRepository(dbClient.DB()),
		dbClient,
		detector,
		locker,
		outboxService,
		trackingMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]apicontrollers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Optimizer: optimizerService,
		Routes:    routesService,
		Tracker:   trackingService,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
