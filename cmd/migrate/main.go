package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
}

// dbCommand runs against the configured catalog database.
type dbCommand func(ctx context.Context, sqlDB *sql.DB, opts options) error

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		return migrate.Run(ctx, sqlDB, opts.dir, "up")
	},
	"down": func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		return migrate.Run(ctx, sqlDB, opts.dir, "down")
	},
	"status": func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		return migrate.Run(ctx, sqlDB, opts.dir, "status")
	},
	"version": func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "one of: create, validate, "+strings.Join(commandNames(), ", "))
	dir := flag.String("dir", "", "migrations directory on disk; empty uses the migrations built into this binary")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"store":  cfg.Store.Driver,
		"source": sourceLabel(*dir),
	})

	if err := run(ctx, logg, cfg, *cmd, options{dir: *dir, name: *name, version: *version}); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, cfg *config.Config, cmd string, opts options) error {
	// authoring commands work on files and never touch a database
	switch cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(diskDir(opts.dir), opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	command, ok := dbCommands[cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd %q", cmd)
	}
	if !cfg.Store.UsesSQL() {
		return fmt.Errorf("store driver %q keeps no sql schema; mongo indexes are ensured at startup", cfg.Store.Driver)
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer client.Close()

	// the goose files are postgres DDL; sqlite catalogs are built from the models
	if cfg.DB.Driver == config.StoreDriverSQLite || cfg.FeatureFlags.UseSQLite {
		if cmd != "up" {
			return fmt.Errorf("-cmd %s is not supported on sqlite", cmd)
		}
		logg.Info(ctx, "auto-migrating sqlite catalog schema")
		return client.DB().WithContext(ctx).AutoMigrate(models.All()...)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	logg.Info(ctx, "running catalog migrations")
	if err := command(ctx, sqlDB, opts); err != nil {
		return err
	}
	logg.Info(ctx, "catalog migrations finished")
	return nil
}

func diskDir(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func sourceLabel(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

func commandNames() []string {
	names := make([]string, 0, len(dbCommands))
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
