// Package datastore opens the configured catalog backend and hands out its repositories.
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/internal/users"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/migrate"
	"github.com/angelmondragon/stockroom-backend/pkg/mongodb"
)

const closeTimeout = 5 * time.Second

// Set is one open backend. Every repository in it shares the same connection.
type Set struct {
	Users      users.Store
	Inventory  inventory.Repository
	Deliveries deliveries.Repository

	pinger db.Pinger
	close  func(ctx context.Context) error
}

// Ping reports whether the backend is reachable.
func (s *Set) Ping(ctx context.Context) error {
	return s.pinger.Ping(ctx)
}

// Close releases the underlying connection.
func (s *Set) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.close(ctx)
}

// Open connects to the driver named by cfg.Store. SQL backends run the dev
// auto-migration; Mongo backends ensure their indexes.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Set, error) {
	if cfg.Store.UsesMongo() {
		return openMongo(ctx, cfg, logg)
	}
	return openSQL(ctx, cfg, logg)
}

func openSQL(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Set, error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	conn := client.DB()
	return &Set{
		Users:      users.NewRepository(conn),
		Inventory:  inventory.NewRepository(conn),
		Deliveries: deliveries.NewRepository(conn),
		pinger:     client,
		close:      func(context.Context) error { return client.Close() },
	}, nil
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func openMongo(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Set, error) {
	client, err := mongodb.New(ctx, cfg.Store, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap mongo: %w", err)
	}

	database := client.Database()
	userRepo := users.NewMongoRepository(database)
	itemRepo := inventory.NewMongoRepository(database)
	deliveryRepo := deliveries.NewMongoRepository(database)

	for name, repo := range map[string]indexer{"users": userRepo, "inventory_items": itemRepo, "delivery_records": deliveryRepo} {
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Close(ctx)
			return nil, fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}

	return &Set{
		Users:      userRepo,
		Inventory:  itemRepo,
		Deliveries: deliveryRepo,
		pinger:     client,
		close:      client.Close,
	}, nil
}
