package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	ch chan UsageRecord
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan UsageRecord, 8)}
}

func (s *captureSink) RecordUsage(_ context.Context, rec UsageRecord) error {
	s.ch <- rec
	return nil
}

func (s *captureSink) wait(t *testing.T) UsageRecord {
	t.Helper()
	select {
	case rec := <-s.ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("no usage record emitted")
		return UsageRecord{}
	}
}

func TestFinalizeExactCountsPassThrough(t *testing.T) {
	sink := newCaptureSink()
	acc := NewAccountant(sink)

	resp := &ChatResponse{
		ID:       "r1",
		Provider: "openai",
		Model:    "gpt-4o",
		Content:  "hi",
		Usage:    Usage{PromptTokens: 100, CompletionTokens: 50},
	}
	rec := acc.Finalize(userReq(), resp, 250*time.Millisecond)

	assert.False(t, rec.Estimated)
	assert.Equal(t, 100, rec.PromptTokens)
	assert.Equal(t, 50, rec.CompletionTokens)
	assert.Equal(t, 150, rec.TotalTokens)
	assert.Equal(t, int64(250), rec.LatencyMs)

	// gpt-4o: 0.005/1K prompt + 0.015/1K completion.
	assert.InDelta(t, 100.0/1000*0.005+50.0/1000*0.015, rec.CostUSD, 1e-9)

	emitted := sink.wait(t)
	assert.Equal(t, rec, emitted)
}

func TestFinalizeEstimatesUnknownCounts(t *testing.T) {
	acc := NewAccountant(nil)

	req := ChatRequest{Messages: []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "what is the answer"},
	}}
	resp := &ChatResponse{
		Provider: "ollama",
		Model:    "llama3",
		Content:  "forty two",
		Usage:    Usage{PromptTokens: TokenCountUnknown, CompletionTokens: TokenCountUnknown},
	}
	rec := acc.Finalize(req, resp, time.Millisecond)

	assert.True(t, rec.Estimated)
	// 6 prompt words -> 8 tokens, 2 completion words -> 3 tokens.
	assert.Equal(t, 8, rec.PromptTokens)
	assert.Equal(t, 3, rec.CompletionTokens)
	assert.Equal(t, 11, rec.TotalTokens)
	assert.Zero(t, rec.CostUSD, "local providers are free")

	// The response reflects the accounted numbers too.
	assert.Equal(t, rec.TotalTokens, resp.Usage.TotalTokens)
}

func TestFinalizeMixedKnownAndUnknown(t *testing.T) {
	acc := NewAccountant(nil)

	resp := &ChatResponse{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Content:  "one two three",
		Usage:    Usage{PromptTokens: 40, CompletionTokens: TokenCountUnknown},
	}
	rec := acc.Finalize(userReq(), resp, time.Millisecond)

	assert.True(t, rec.Estimated, "any estimated component marks the record")
	assert.Equal(t, 40, rec.PromptTokens)
	assert.Equal(t, 4, rec.CompletionTokens)
	assert.Equal(t, 44, rec.TotalTokens)
	assert.Greater(t, rec.CostUSD, 0.0)
}

func TestFinalizeClampsNegativeCounts(t *testing.T) {
	acc := NewAccountant(nil)

	resp := &ChatResponse{
		Provider: "openai",
		Model:    "gpt-4o",
		Usage:    Usage{PromptTokens: -7, CompletionTokens: 10},
	}
	rec := acc.Finalize(userReq(), resp, time.Millisecond)

	assert.Equal(t, 0, rec.PromptTokens)
	assert.Equal(t, 10, rec.TotalTokens)
}

func TestFinalizeSinkFailureDoesNotPropagate(t *testing.T) {
	acc := NewAccountant(failSink{})

	resp := &ChatResponse{Provider: "mock", Model: "mock-model", Content: "x",
		Usage: Usage{PromptTokens: 1, CompletionTokens: 1}}

	// Finalize never returns an error; a broken sink only logs.
	rec := acc.Finalize(userReq(), resp, time.Millisecond)
	assert.Equal(t, 2, rec.TotalTokens)
}

type failSink struct{}

func (failSink) RecordUsage(context.Context, UsageRecord) error {
	return context.DeadlineExceeded
}

func TestMultiSinkFansOut(t *testing.T) {
	a := newCaptureSink()
	b := newCaptureSink()
	multi := MultiSink{failSink{}, a, b}

	rec := UsageRecord{Provider: "mock", Model: "mock-model", TotalTokens: 3}
	require.NoError(t, multi.RecordUsage(context.Background(), rec))

	assert.Equal(t, rec, a.wait(t), "a failing sink does not block the rest")
	assert.Equal(t, rec, b.wait(t))
}
