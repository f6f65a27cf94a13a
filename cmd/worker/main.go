package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/llmgateway/internal/audit"
	"github.com/nikhilbhutani/llmgateway/internal/config"
	"github.com/nikhilbhutani/llmgateway/internal/queue"
	"github.com/nikhilbhutani/llmgateway/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("DATABASE_URL is required for the worker")
		os.Exit(1)
	}

	store, err := audit.NewStore(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("failed to connect usage store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	usageWorker := workers.NewUsageWorker(store)
	registry.Register(queue.TypeUsageRecord, asynq.HandlerFunc(usageWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
