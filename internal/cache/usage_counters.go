package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

const counterTTL = 48 * time.Hour

// UsageCounters keeps rolling per-day token and cost counters in Redis for
// cheap cost dashboards. It implements llm.UsageSink.
type UsageCounters struct {
	client *redis.Client
}

func NewUsageCounters(client *redis.Client) *UsageCounters {
	return &UsageCounters{client: client}
}

// RecordUsage bumps the day's counters for the record's provider and model.
func (c *UsageCounters) RecordUsage(ctx context.Context, rec llm.UsageRecord) error {
	day := rec.Timestamp.UTC().Format("2006-01-02")
	base := fmt.Sprintf("usage:%s:%s:%s", day, rec.Provider, rec.Model)

	pipe := c.client.Pipeline()
	pipe.IncrBy(ctx, base+":calls", 1)
	pipe.IncrBy(ctx, base+":tokens", int64(rec.TotalTokens))
	pipe.IncrByFloat(ctx, base+":cost_usd", rec.CostUSD)
	pipe.Expire(ctx, base+":calls", counterTTL)
	pipe.Expire(ctx, base+":tokens", counterTTL)
	pipe.Expire(ctx, base+":cost_usd", counterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump usage counters: %w", err)
	}
	return nil
}

// DayTotals reads one day's counters back for a provider/model pair.
// Missing keys read as zero.
func (c *UsageCounters) DayTotals(ctx context.Context, day, provider, model string) (calls, tokens int64, costUSD float64, err error) {
	base := fmt.Sprintf("usage:%s:%s:%s", day, provider, model)

	calls, err = c.client.Get(ctx, base+":calls").Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, 0, fmt.Errorf("read calls counter: %w", err)
	}
	tokens, err = c.client.Get(ctx, base+":tokens").Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, 0, fmt.Errorf("read tokens counter: %w", err)
	}
	costUSD, err = c.client.Get(ctx, base+":cost_usd").Float64()
	if err != nil && err != redis.Nil {
		return 0, 0, 0, fmt.Errorf("read cost counter: %w", err)
	}
	return calls, tokens, costUSD, nil
}
