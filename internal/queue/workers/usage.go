package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/llmgateway/internal/audit"
	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

// UsageWorker drains usage:record tasks into the Postgres usage store.
type UsageWorker struct {
	store *audit.Store
}

func NewUsageWorker(store *audit.Store) *UsageWorker {
	return &UsageWorker{store: store}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var rec llm.UsageRecord
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		return fmt.Errorf("unmarshal usage record: %w", err)
	}

	if err := w.store.RecordUsage(ctx, rec); err != nil {
		return fmt.Errorf("persist usage record: %w", err)
	}

	slog.Debug("persisted usage record",
		"provider", rec.Provider,
		"model", rec.Model,
		"total_tokens", rec.TotalTokens,
	)
	return nil
}
