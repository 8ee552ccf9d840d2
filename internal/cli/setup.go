package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/capybara-rs/scheduler/internal/config"
	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/executor"
	"github.com/capybara-rs/scheduler/internal/store"
	"github.com/capybara-rs/scheduler/internal/taskfile"
)

// loadEnvFile merges an optional dotenv file into the process environment.
// Existing variables win over file values.
func loadEnvFile(cfg config.Config, logger *slog.Logger) error {
	if cfg.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(cfg.EnvFile); err != nil {
		return fmt.Errorf("load env file %s: %w", cfg.EnvFile, err)
	}
	logger.Info("env file loaded", slog.String("path", cfg.EnvFile))
	return nil
}

// buildStore constructs the configured watermark store, wrapped so writes
// for the same task name are serialized. The returned cleanup closes the
// backing connection.
func buildStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return store.Serialized(store.NewMemory()), func() {}, nil
	case "redis":
		client := store.NewRedisClient(cfg.RedisAddr)
		cleanup := func() { _ = client.Close() }
		return store.Serialized(store.NewRedis(client)), cleanup, nil
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store.Serialized(store.NewPostgres(pool)), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q, expected one of [memory, redis, postgres]", cfg.StoreBackend)
}

// buildExecutor wires the executor with the configured env snapshot mode and
// dispatch timeout.
func buildExecutor(cfg config.Config, st store.Store, logger *slog.Logger) (*executor.Executor, error) {
	opts := []executor.Option{executor.WithLogger(logger)}
	if cfg.DefaultTimeout > 0 {
		opts = append(opts, executor.WithDefaultTimeout(cfg.DefaultTimeout))
	}
	switch cfg.EnvMode {
	case "", "per_cycle":
		// Default: every cycle snapshots the current environment.
	case "frozen":
		opts = append(opts, executor.WithEnv(executor.FrozenEnv()))
	default:
		return nil, fmt.Errorf("unknown env mode %q, expected one of [per_cycle, frozen]", cfg.EnvMode)
	}
	return executor.New(st, opts...), nil
}

// loadTasks reads the task document, logging and dropping every task with a
// definition error.
func loadTasks(cfg config.Config, logger *slog.Logger) ([]*domain.Task, error) {
	res, err := taskfile.Load(cfg.TaskFile)
	if err != nil {
		return nil, err
	}
	for _, defErr := range res.Errors {
		logger.Error("task definition rejected, excluded from scheduling",
			slog.String("error", defErr.Error()),
		)
	}
	return res.Tasks, nil
}
