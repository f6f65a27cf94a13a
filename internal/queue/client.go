package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/llmgateway/internal/config"
	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

// Client enqueues gateway tasks onto the Redis-backed queue.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueUsageRecord queues one usage record for durable persistence by the
// worker process.
func (c *Client) EnqueueUsageRecord(ctx context.Context, rec llm.UsageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	task := asynq.NewTask(TypeUsageRecord, data)
	_, err = c.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeUsageRecord, err)
	}
	return nil
}

// UsageSink adapts the queue client to the gateway's sink contract.
type UsageSink struct {
	client *Client
}

func NewUsageSink(client *Client) *UsageSink {
	return &UsageSink{client: client}
}

func (s *UsageSink) RecordUsage(ctx context.Context, rec llm.UsageRecord) error {
	return s.client.EnqueueUsageRecord(ctx, rec)
}
