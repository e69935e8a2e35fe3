package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockroom-backend/internal/audit"
	"github.com/angelmondragon/stockroom-backend/internal/datastore"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"github.com/angelmondragon/stockroom-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "audit-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "audit-worker"

	logg = logger.New(logger.Options{
		ServiceName: "audit-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := datastore.Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open store", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing store", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registerer := prometheus.NewRegistry()
	auditMetrics := metrics.NewAuditMetrics(registerer)

	lock, err := audit.NewRedisLock(redisClient, redisClient.LockKey("audit"), cfg.Audit.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create audit lock", err)
		os.Exit(1)
	}

	lowStock, err := audit.NewLowStockJob(store.Inventory, auditMetrics, logg, cfg.Audit.LowStockThreshold)
	if err != nil {
		logg.Error(ctx, "failed to create low stock job", err)
		os.Exit(1)
	}
	dangling, err := audit.NewDanglingDeliveriesJob(store.Deliveries, auditMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create dangling deliveries job", err)
		os.Exit(1)
	}

	service, err := audit.NewService(audit.ServiceParams{
		Logger:   logg,
		Registry: audit.NewRegistry(lowStock, dangling),
		Lock:     lock,
		Metrics:  auditMetrics,
		Interval: cfg.Audit.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create audit service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Audit.Interval.String(),
	})

	if cfg.Audit.MetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.Audit.MetricsPort,
			Handler:           promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer metricsServer.Close()
	}

	logg.Info(ctx, "starting audit worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "audit worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "audit worker shutting down gracefully")
}
