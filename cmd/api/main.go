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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/stockroom-backend/api/routes"
	"github.com/angelmondragon/stockroom-backend/internal/auth"
	"github.com/angelmondragon/stockroom-backend/internal/barcode"
	"github.com/angelmondragon/stockroom-backend/internal/datastore"
	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/internal/reports"
	"github.com/angelmondragon/stockroom-backend/internal/users"
	"github.com/angelmondragon/stockroom-backend/pkg/auth/session"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"github.com/angelmondragon/stockroom-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stockMetrics := metrics.NewStockMetrics(registry)

	allocator, err := barcode.NewAllocator(store.Inventory,
		barcode.WithMaxAttempts(cfg.Inventory.BarcodeMaxAttempts),
		barcode.WithMetrics(stockMetrics),
	)
	requireService(ctx, logg, "barcode allocator", err)

	userService, err := users.NewService(store.Users, cfg.Password, logg)
	requireService(ctx, logg, "users", err)
	if err := userService.EnsureAdmin(ctx, cfg.Bootstrap); err != nil {
		logg.Error(ctx, "failed to seed bootstrap admin", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       store.Users,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	requireService(ctx, logg, "auth", err)

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:      store.Inventory,
		Allocator: allocator,
		Metrics:   stockMetrics,
		Logger:    logg,
	})
	requireService(ctx, logg, "inventory", err)

	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:    store.Deliveries,
		Items:   store.Inventory,
		Metrics: stockMetrics,
		Logger:  logg,
	})
	requireService(ctx, logg, "deliveries", err)

	reportService, err := reports.NewService(inventoryService, deliveryService, store.Users)
	requireService(ctx, logg, "reports", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"store": cfg.Store.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Params{
			Config:      cfg,
			Logger:      logg,
			Gatherer:    registry,
			StorePinger: store,
			RedisPinger: redisClient,
			Sessions:    sessionManager,
			Idempotency: redisClient,
			RateLimits:  redisClient,
			Auth:        authService,
			Users:       userService,
			Inventory:   inventoryService,
			Deliveries:  deliveryService,
			Reports:     reportService,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
}

func requireService(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to create "+name+" service", err)
	os.Exit(1)
}
