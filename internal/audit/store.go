package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/llmgateway/internal/config"
	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

// Store persists gateway usage records in Postgres. It implements
// llm.UsageSink, so it can be plugged straight into the gateway, and it
// backs the admin usage-summary endpoint.
type Store struct {
	db *pgxpool.Pool
}

// NewStore connects a pool and makes sure the usage table exists.
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Pool exposes the underlying pool for readiness probes.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS llm_usage_logs (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INT NOT NULL,
			completion_tokens INT NOT NULL,
			total_tokens INT NOT NULL,
			cost_usd NUMERIC(12,6) NOT NULL,
			latency_ms BIGINT NOT NULL,
			estimated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create llm_usage_logs: %w", err)
	}
	return nil
}

// RecordUsage implements llm.UsageSink.
func (s *Store) RecordUsage(ctx context.Context, rec llm.UsageRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO llm_usage_logs (id, request_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, latency_ms, estimated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), rec.RequestID, rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens,
		rec.TotalTokens, rec.CostUSD, rec.LatencyMs, rec.Estimated, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

// UsageSummary aggregates spend per provider and model.
type UsageSummary struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TotalCalls   int     `json:"total_calls"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (s *Store) GetUsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]UsageSummary, error) {
	query := `SELECT provider, model, COUNT(*) as total_calls,
			         COALESCE(SUM(total_tokens), 0) as total_tokens,
			         COALESCE(SUM(cost_usd), 0) as total_cost_usd
			  FROM llm_usage_logs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if startDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *startDate)
		argIdx++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *endDate)
		argIdx++
	}

	query += " GROUP BY provider, model ORDER BY total_cost_usd DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []UsageSummary
	for rows.Next() {
		var us UsageSummary
		if err := rows.Scan(&us.Provider, &us.Model, &us.TotalCalls, &us.TotalTokens, &us.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, us)
	}
	return summaries, nil
}
