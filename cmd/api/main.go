package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/llmgateway/internal/api"
	"github.com/nikhilbhutani/llmgateway/internal/audit"
	"github.com/nikhilbhutani/llmgateway/internal/cache"
	"github.com/nikhilbhutani/llmgateway/internal/config"
	"github.com/nikhilbhutani/llmgateway/internal/llm"
	"github.com/nikhilbhutani/llmgateway/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Usage store (optional — gracefully handle missing DATABASE_URL)
	var store *audit.Store
	var dbPool *pgxpool.Pool
	if cfg.Database.URL != "" {
		store, err = audit.NewStore(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, running without usage store", "error", err)
			store = nil
		} else {
			defer store.Close()
			dbPool = store.Pool()
		}
	}

	// Redis connection (optional)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var sinks []llm.UsageSink
	var counters *cache.UsageCounters
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without counters and queue", "error", err)
		rdb.Close()
		rdb = nil
	} else {
		defer rdb.Close()

		queueClient := queue.NewClient(cfg.Redis)
		defer queueClient.Close()
		counters = cache.NewUsageCounters(rdb)
		sinks = append(sinks, queue.NewUsageSink(queueClient))
		sinks = append(sinks, counters)
	}

	if len(sinks) == 0 && store != nil {
		// No queue to route through: write usage straight to Postgres.
		sinks = append(sinks, store)
	}
	sinks = append(sinks, llm.LogSink{})

	gw := llm.NewGateway(cfg.LLM, llm.MultiSink(sinks))

	router := api.NewRouter(gw, store, counters, dbPool, rdb, cfg)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
