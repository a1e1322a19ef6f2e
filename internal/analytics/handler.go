package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// StatsSource is anything that can report aggregated stats.
type StatsSource interface {
	Stats() AggregatedStats
}

// Handler serves GET /api/v1/analytics.
type Handler struct {
	source StatsSource
	logger *slog.Logger
}

func NewHandler(source StatsSource) *Handler {
	return &Handler{
		source: source,
		logger: slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the current totals. ?top=N trims the top and zero-result
// query lists to N entries.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.source.Stats()
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		stats.TopQueries = trim(stats.TopQueries, n)
		stats.ZeroResultQueries = trim(stats.ZeroResultQueries, n)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func trim(qs []QueryCount, n int) []QueryCount {
	if len(qs) > n {
		return qs[:n]
	}
	return qs
}
