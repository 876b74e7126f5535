// Package main is the entrypoint for the Iris service daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/iris-bridge/internal/config"
	"github.com/morezero/iris-bridge/internal/server"
	"github.com/morezero/iris-bridge/pkg/bootstrap"
	"github.com/morezero/iris-bridge/pkg/db"
)

const usage = `Usage: irisd [command]
       irisd serve                    Start the Iris service (COMMS, backend, HTTP health).
       irisd migrate up               Run database migrations.
       irisd migrate down             Roll back (not supported; migrations are forward-only).
       irisd migrate status           Show migration status.
       irisd ensure-db [name]         Create database if missing (default name: iris_test). Uses DATABASE_URL host/user.
       irisd clear                    Delete stored feature values of IRIS_INSTANCE; schema is preserved.
       irisd seed [file] [--overwrite] Store seed file features for IRIS_INSTANCE.

Commands:
  serve           (default) Start the Iris service.
  migrate up      Run database migrations only.
  migrate down    Roll back last migration (no-op).
  migrate status  Show current migration status.
  ensure-db [name] Create database on the same host as DATABASE_URL.
  clear           Delete stored feature values; schema preserved.
  seed [file]     Seed feature defaults (file defaults to IRIS_SEED_FILE). Existing values are kept unless --overwrite.

Environment: COMMS_URL, COMMS_EMBEDDED, IRIS_INSTANCE, IRIS_BACKEND (memory|postgres), IRIS_CALLBACK_MODE (single|per-cookie),
IRIS_SEED_FILE, DATABASE_URL (postgres backend and DB commands), MIGRATION_PATH, HTTP_PORT (default 8080), LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("irisd migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("irisd migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("irisd migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("irisd migrate down: %v", err)
			}
		default:
			log.Fatalf("irisd migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("irisd clear: %v", err)
		}
		return
	case "seed":
		file, overwrite := parseSeedArgs(args[1:])
		if err := runSeed(file, overwrite); err != nil {
			log.Fatalf("irisd seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "iris_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("irisd ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("irisd: %v", err)
	}
}

// parseSeedArgs splits "seed [file] [--overwrite]" in any order.
func parseSeedArgs(args []string) (file string, overwrite bool) {
	for _, a := range args {
		switch a {
		case "--overwrite", "-f":
			overwrite = true
		case "":
		default:
			if file == "" {
				file = a
			}
		}
	}
	return file, overwrite
}

// withPool loads config, validates it for DB use and runs fn with a pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrationSQL, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runMigrateStatus() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	})
}

func runMigrateDown() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		return db.MigrationDown(ctx, pool, cfg.MigrationPath)
	})
}

func runClear() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		n, err := db.ClearFeatures(ctx, pool, cfg.Instance)
		if err != nil {
			return fmt.Errorf("clear features: %w", err)
		}
		fmt.Printf("Cleared %d feature values of instance %q.\n", n, cfg.Instance)
		return nil
	})
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runSeed(fileOverride string, overwrite bool) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		path := fileOverride
		if path == "" {
			path = cfg.SeedFile
		}
		if path == "" {
			return fmt.Errorf("no seed file given (pass a path or set %s)", bootstrap.EnvSeedFile)
		}
		seed, err := bootstrap.LoadSeedFile(path)
		if err != nil {
			return err
		}
		instance := cfg.Instance
		if seed.Instance != "" {
			instance = seed.Instance
		}
		n, err := db.SeedFeatures(ctx, pool, instance, seed, overwrite)
		if err != nil {
			return fmt.Errorf("seed features: %w", err)
		}
		fmt.Printf("Seeded %d of %d features into instance %q from %s.\n", n, len(seed.Features), instance, path)
		return nil
	})
}
