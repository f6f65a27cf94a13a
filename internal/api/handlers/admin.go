package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhilbhutani/llmgateway/internal/audit"
)

// UsageCounterReader reads back the Redis day counters.
type UsageCounterReader interface {
	DayTotals(ctx context.Context, day, provider, model string) (calls, tokens int64, costUSD float64, err error)
}

type AdminHandler struct {
	store    *audit.Store
	counters UsageCounterReader
}

func NewAdminHandler(store *audit.Store, counters UsageCounterReader) *AdminHandler {
	return &AdminHandler{store: store, counters: counters}
}

func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage store not configured"})
		return
	}

	var startDate, endDate *time.Time

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			startDate = &t
		}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			endDate = &t
		}
	}

	summary, err := h.store.GetUsageSummary(r.Context(), startDate, endDate)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": summary})
}

// UsageToday serves the Redis-backed rolling counters for one provider/model
// pair, cheaper than the Postgres summary for live dashboards.
func (h *AdminHandler) UsageToday(w http.ResponseWriter, r *http.Request) {
	if h.counters == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage counters not configured"})
		return
	}

	provider := r.URL.Query().Get("provider")
	model := r.URL.Query().Get("model")
	if provider == "" || model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provider and model query params required"})
		return
	}

	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}

	calls, tokens, costUSD, err := h.counters.DayTotals(r.Context(), day, provider, model)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":            day,
		"provider":       provider,
		"model":          model,
		"total_calls":    calls,
		"total_tokens":   tokens,
		"total_cost_usd": costUSD,
	})
}
