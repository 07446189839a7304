// Command flowtided runs the Flowtide background orchestrator: worker
// pools over the Redis queue store, the recurring-job scheduler, the
// bottleneck-detection engine over Postgres, and the health/metrics
// HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/engine"
	bunstore "github.com/flowtidehq/flowtide/store/bun"
	redisstore "github.com/flowtidehq/flowtide/store/redis"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("flowtided exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := flowtide.ConfigFromEnv()

	redisOpts, err := goredis.ParseURL(cfg.QueueStoreURL)
	if err != nil {
		return fmt.Errorf("parse queue store url: %w", err)
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close() //nolint:errcheck // process is exiting

	queueStore := redisstore.New(redisClient, redisstore.WithLogger(logger))

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseDSN)))
	bundb := bun.NewDB(sqldb, pgdialect.New())
	defer bundb.Close() //nolint:errcheck // process is exiting

	database := bunstore.New(bundb, bunstore.WithLogger(logger))

	svc, err := flowtide.New(
		flowtide.WithConfig(cfg),
		flowtide.WithLogger(logger),
		flowtide.WithQueueStore(queueStore),
		flowtide.WithDatabase(database),
	)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	eng, err := engine.Build(svc, queueStore, database, collaborators(logger))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := queueStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate queue store: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := eng.Planner().Plan(ctx); err != nil {
		return fmt.Errorf("plan recurring schedule: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	logger.Info("flowtided running",
		slog.Int("health_port", cfg.HealthPort),
		slog.Bool("agents", cfg.AgentsEnabled),
		slog.Bool("briefings", cfg.BriefingsEnabled),
		slog.Bool("predictions", cfg.PredictionsEnabled),
	)

	<-ctx.Done()
	stop()
	logger.Info("shutdown signal received",
		slog.Duration("grace", cfg.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return svc.Stop(shutdownCtx)
}
