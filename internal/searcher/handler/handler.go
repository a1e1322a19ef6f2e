package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/signals"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/titles"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
)

// TimeRowKey marks the elapsed-time row that leads every search response.
const TimeRowKey = "__time__"

const maxSignalBody = 1 << 20

type SearchExecutor interface {
	Execute(ctx context.Context, mode executor.Mode, plan *parser.QueryPlan) (*executor.SearchResult, error)
}

// Row is one [id, title] pair of a search response.
type Row [2]string

type Handler struct {
	executor SearchExecutor
	cache    *cache.QueryCache
	titles   titles.Lookup
	signals  signals.Source
	tracker  analytics.Tracker
	logger   *slog.Logger
}

// New builds the HTTP handlers. queryCache and tracker may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, titleLookup titles.Lookup, signalSource signals.Source, tracker analytics.Tracker) *Handler {
	if signalSource == nil {
		signalSource = signals.Neutral{}
	}
	return &Handler{
		executor: exec,
		cache:    queryCache,
		titles:   titleLookup,
		signals:  signalSource,
		tracker:  tracker,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search(executor.ModeFused))
	mux.HandleFunc("GET /search_body", h.Search(executor.ModeBody))
	mux.HandleFunc("GET /search_title", h.Search(executor.ModeTitle))
	mux.HandleFunc("GET /search_anchor", h.Search(executor.ModeAnchor))
	mux.HandleFunc("POST /get_pagerank", h.PageRank)
	mux.HandleFunc("POST /get_pageview", h.PageViews)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search answers ?query= in the given mode with a list of [id, title]
// pairs led by a [__time__, elapsed] row. A blank query yields [].
func (h *Handler) Search(mode executor.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		log := logger.FromContext(ctx)

		query := r.URL.Query().Get("query")
		if strings.TrimSpace(query) == "" {
			h.writeJSON(w, http.StatusOK, []Row{})
			return
		}

		plan := parser.Parse(query)
		result, cacheHit, err := h.execute(ctx, mode, plan)
		elapsed := time.Since(start)
		if err != nil {
			status := apperrors.HTTPStatusCode(err)
			log.Error("search failed", "mode", mode, "query", query, "status", status, "error", err)
			h.track(ctx, analytics.SearchEvent{
				Type:      analytics.EventError,
				Mode:      string(mode),
				Query:     query,
				Terms:     plan.Distinct,
				LatencyMs: elapsed.Milliseconds(),
				Status:    status,
			})
			h.writeError(w, status, errorMessage(status, err))
			return
		}

		rows := make([]Row, 0, len(result.Results)+1)
		rows = append(rows, Row{TimeRowKey, FormatElapsed(elapsed)})
		for _, doc := range result.Results {
			rows = append(rows, Row{
				strconv.FormatUint(uint64(doc.DocID), 10),
				titles.Resolve(h.titles, doc.DocID),
			})
		}

		log.Info("search completed",
			"mode", mode,
			"query", query,
			"returned", len(result.Results),
			"cache_hit", cacheHit,
			"latency_ms", elapsed.Milliseconds(),
		)
		eventType := analytics.EventSearch
		if len(result.Results) == 0 {
			eventType = analytics.EventZeroResult
		}
		h.track(ctx, analytics.SearchEvent{
			Type:       eventType,
			Mode:       string(mode),
			Query:      query,
			Terms:      plan.Distinct,
			Candidates: result.Candidates,
			Returned:   len(result.Results),
			LatencyMs:  elapsed.Milliseconds(),
			CacheHit:   cacheHit,
			Status:     http.StatusOK,
		})
		h.writeJSON(w, http.StatusOK, rows)
	}
}

func (h *Handler) execute(ctx context.Context, mode executor.Mode, plan *parser.QueryPlan) (*executor.SearchResult, bool, error) {
	if h.cache == nil || plan.Empty() {
		result, err := h.executor.Execute(ctx, mode, plan)
		return result, false, err
	}
	return h.cache.GetOrCompute(ctx, mode, plan, func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, mode, plan)
	})
}

func (h *Handler) PageRank(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeIDs(r.Body)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	ranks, err := h.signals.PageRank(r.Context(), ids)
	if err != nil {
		logger.FromContext(r.Context()).Error("pagerank lookup failed", "ids", len(ids), "error", err)
		h.writeError(w, http.StatusInternalServerError, "pagerank lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ranks)
}

func (h *Handler) PageViews(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeIDs(r.Body)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	views, err := h.signals.PageViews(r.Context(), ids)
	if err != nil {
		logger.FromContext(r.Context()).Error("pageview lookup failed", "ids", len(ids), "error", err)
		h.writeError(w, http.StatusInternalServerError, "pageview lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

// decodeIDs reads a JSON array of ids given as numbers or strings. An empty
// body or null reads as no ids.
func decodeIDs(body io.Reader) ([]string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxSignalBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", apperrors.ErrInvalidInput, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []string{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON list of ids", apperrors.ErrInvalidInput)
	}
	ids := make([]string, len(raw))
	for i, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			ids[i] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			ids[i] = n.String()
			continue
		}
		return nil, fmt.Errorf("%w: id %d is neither a number nor a string", apperrors.ErrInvalidInput, i)
	}
	return ids, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"errors":        stats.Errors,
		"total":         total,
		"hit_rate":      fmt.Sprintf("%.1f%%", hitRate),
		"breaker_state": stats.BreakerState,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// FormatElapsed renders d as "0.385s (385ms)".
func FormatElapsed(d time.Duration) string {
	secs := d.Seconds()
	return fmt.Sprintf("%.3fs (%dms)", secs, int64(math.Round(secs*1000)))
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent) {
	if h.tracker == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	h.tracker.Track(event)
}

func errorMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "index not ready"
	case http.StatusGatewayTimeout:
		return "search timed out"
	default:
		return "search failed"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
