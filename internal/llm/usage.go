package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/llmgateway/pkg/tokenizer"
)

// UsageSink receives one UsageRecord per successful call. Sinks are
// fire-and-forget: a failing sink is logged and never fails the gateway call.
type UsageSink interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

const sinkTimeout = 5 * time.Second

// Accountant finalizes token counts and cost on a response and emits the
// resulting UsageRecord to the configured sink.
type Accountant struct {
	sink UsageSink
}

// NewAccountant builds an accountant. A nil sink disables emission.
func NewAccountant(sink UsageSink) *Accountant {
	return &Accountant{sink: sink}
}

// Finalize fills in estimated token counts where the backend reported none,
// enforces total = prompt + completion, computes cost, and emits the record.
// It mutates resp.Usage in place so the caller returns accounted usage.
func (a *Accountant) Finalize(req ChatRequest, resp *ChatResponse, latency time.Duration) UsageRecord {
	estimated := false

	if resp.Usage.PromptTokens == TokenCountUnknown {
		resp.Usage.PromptTokens = tokenizer.EstimateTokens(promptText(req))
		estimated = true
	}
	if resp.Usage.CompletionTokens == TokenCountUnknown {
		resp.Usage.CompletionTokens = tokenizer.EstimateTokens(resp.Content)
		estimated = true
	}
	if resp.Usage.PromptTokens < 0 {
		resp.Usage.PromptTokens = 0
	}
	if resp.Usage.CompletionTokens < 0 {
		resp.Usage.CompletionTokens = 0
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	resp.Usage.CostUSD = CalculateCost(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	resp.LatencyMs = latency.Milliseconds()

	rec := UsageRecord{
		RequestID:        resp.ID,
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          resp.Usage.CostUSD,
		LatencyMs:        resp.LatencyMs,
		Estimated:        estimated,
		Timestamp:        time.Now().UTC(),
	}

	if a.sink != nil {
		go a.emit(rec)
	}
	return rec
}

func (a *Accountant) emit(rec UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := a.sink.RecordUsage(ctx, rec); err != nil {
		slog.Warn("usage sink failed", "provider", rec.Provider, "error", err)
	}
}

func promptText(req ChatRequest) string {
	var b strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// LogSink writes usage records to the default slog logger. Used when no
// durable sink is configured.
type LogSink struct{}

func (LogSink) RecordUsage(_ context.Context, rec UsageRecord) error {
	slog.Info("llm usage",
		"provider", rec.Provider,
		"model", rec.Model,
		"prompt_tokens", rec.PromptTokens,
		"completion_tokens", rec.CompletionTokens,
		"total_tokens", rec.TotalTokens,
		"cost_usd", rec.CostUSD,
		"latency_ms", rec.LatencyMs,
		"estimated", rec.Estimated,
	)
	return nil
}

// MultiSink fans one record out to several sinks; each failure is isolated.
type MultiSink []UsageSink

func (m MultiSink) RecordUsage(ctx context.Context, rec UsageRecord) error {
	for _, s := range m {
		if err := s.RecordUsage(ctx, rec); err != nil {
			slog.Warn("usage sink failed", "error", err)
		}
	}
	return nil
}
