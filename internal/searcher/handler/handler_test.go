package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/signals"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/titles"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/redis"
)

var timeRow = regexp.MustCompile(`^\s*\d+(\.\d+)?s\s*\(\d+ms\)\s*$`)

func fixtureExecutor() *executor.Executor {
	mem := index.NewMemoryStore()
	mem[index.FieldBody].AddTerms(1, []string{"python", "python", "language"})
	mem[index.FieldTitle].AddTerms(1, []string{"python", "language"})
	mem[index.FieldBody].AddTerms(2, []string{"python", "snake"})
	mem[index.FieldTitle].AddTerms(2, []string{"python"})
	mem[index.FieldAnchor].AddTerms(2, []string{"python"})
	return executor.New(executor.Static(mem), executor.Config{
		Weights:            ranker.DefaultWeights(),
		CorpusSize:         1000,
		MaxCandidates:      100,
		MaxPostingsPerTerm: 100,
		ResultCap:          100,
	}, nil)
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func newServer(t *testing.T, exec SearchExecutor, tracker analytics.Tracker) *httptest.Server {
	t.Helper()
	h := New(exec, nil, titles.Static{1: "Python (programming language)"}, signals.Neutral{}, tracker)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getRows(t *testing.T, url string) (int, []Row) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var rows []Row
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	}
	return resp.StatusCode, rows
}

func TestSearchReturnsTimeRowThenPairs(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, fixtureExecutor(), rec)

	status, rows := getRows(t, srv.URL+"/search?query=python+language")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 3)
	assert.Equal(t, TimeRowKey, rows[0][0])
	assert.Regexp(t, timeRow, rows[0][1])
	assert.Equal(t, Row{"1", "Python (programming language)"}, rows[1])
	assert.Equal(t, Row{"2", "2"}, rows[2], "missing titles fall back to the id")

	events := rec.all()
	require.Len(t, events, 1)
	ev := events[0].(analytics.SearchEvent)
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, "fused", ev.Mode)
	assert.Equal(t, 2, ev.Returned)
	assert.Equal(t, []string{"python", "language"}, ev.Terms)
}

func TestSearchEndpointsPerMode(t *testing.T) {
	srv := newServer(t, fixtureExecutor(), nil)
	tests := []struct {
		path string
		want []string
	}{
		{"/search_body?query=python", []string{"1", "2"}},
		{"/search_title?query=python+language", []string{"1", "2"}},
		{"/search_anchor?query=python", []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, rows := getRows(t, srv.URL+tt.path)
			require.Equal(t, http.StatusOK, status)
			require.NotEmpty(t, rows)
			assert.Equal(t, TimeRowKey, rows[0][0])
			var ids []string
			for _, row := range rows[1:] {
				ids = append(ids, row[0])
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	srv := newServer(t, fixtureExecutor(), nil)
	for _, path := range []string{"/search", "/search?query=", "/search_title?query=%20%20"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body := new(strings.Builder)
		_, err = io.Copy(body, resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `[]`, body.String())
	}
}

func TestSearchStopwordsOnlyKeepsTimeRow(t *testing.T) {
	srv := newServer(t, fixtureExecutor(), nil)
	status, rows := getRows(t, srv.URL+"/search?query=the+and+of")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 1)
	assert.Equal(t, TimeRowKey, rows[0][0])
}

type failingExecutor struct{ err error }

func (f failingExecutor) Execute(context.Context, executor.Mode, *parser.QueryPlan) (*executor.SearchResult, error) {
	return nil, f.err
}

func TestSearchErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not ready", apperrors.ErrNotReady, http.StatusServiceUnavailable},
		{"timeout", apperrors.ErrTimeout, http.StatusGatewayTimeout},
		{"internal", apperrors.ErrInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := newServer(t, failingExecutor{err: tt.err}, rec)
			status, _ := getRows(t, srv.URL+"/search?query=python")
			assert.Equal(t, tt.want, status)
			events := rec.all()
			require.Len(t, events, 1)
			assert.Equal(t, analytics.EventError, events[0].(analytics.SearchEvent).Type)
		})
	}
}

func postJSON(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out := new(strings.Builder)
	_, err = io.Copy(out, resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.String()
}

func TestSignalEndpointsReturnSameLength(t *testing.T) {
	srv := newServer(t, fixtureExecutor(), nil)

	status, body := postJSON(t, srv.URL+"/get_pagerank", `[1, "2", 30]`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[0, 0, 0]`, body)

	status, body = postJSON(t, srv.URL+"/get_pageview", `[12]`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[0]`, body)

	status, body = postJSON(t, srv.URL+"/get_pageview", ``)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, body)

	status, _ = postJSON(t, srv.URL+"/get_pagerank", `{"ids": [1]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postJSON(t, srv.URL+"/get_pagerank", `[true]`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSignalsFromTable(t *testing.T) {
	h := New(fixtureExecutor(), nil, nil, signals.Table{Ranks: map[string]float64{"7": 0.5}}, nil)
	rec := httptest.NewRecorder()
	h.PageRank(rec, httptest.NewRequest(http.MethodPost, "/get_pagerank", strings.NewReader(`[7, 8]`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[0.5, 0]`, rec.Body.String())
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	srv := newServer(t, fixtureExecutor(), nil)

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := postJSON(t, srv.URL+"/api/v1/cache/invalidate", ``)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0.385s (385ms)", FormatElapsed(385*time.Millisecond))
	assert.Equal(t, "1.000s (1000ms)", FormatElapsed(time.Second))
	assert.Equal(t, "0.000s (0ms)", FormatElapsed(0))
	assert.Regexp(t, timeRow, FormatElapsed(1234567*time.Microsecond))
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *mapBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", pkgredis.ErrMiss
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = string(value)
	return nil
}

func (b *mapBackend) FlushByPattern(context.Context, string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = map[string]string{}
	return n, nil
}

type countingExecutor struct {
	SearchExecutor
	calls atomic.Int32
}

func (c *countingExecutor) Execute(ctx context.Context, mode executor.Mode, plan *parser.QueryPlan) (*executor.SearchResult, error) {
	c.calls.Add(1)
	return c.SearchExecutor.Execute(ctx, mode, plan)
}

func TestSearchUsesCache(t *testing.T) {
	exec := &countingExecutor{SearchExecutor: fixtureExecutor()}
	rec := &recorder{}
	qc := cache.New(&mapBackend{data: map[string]string{}}, time.Minute, "test", nil)
	h := New(exec, qc, nil, nil, rec)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, first := getRows(t, srv.URL+"/search?query=python")
	_, second := getRows(t, srv.URL+"/search?query=PYTHON")
	assert.Equal(t, first[1:], second[1:])
	assert.Equal(t, int32(1), exec.calls.Load())

	events := rec.all()
	require.Len(t, events, 2)
	assert.False(t, events[0].(analytics.SearchEvent).CacheHit)
	assert.True(t, events[1].(analytics.SearchEvent).CacheHit)

	status, body := postJSON(t, srv.URL+"/api/v1/cache/invalidate", ``)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"invalidated","keys_deleted":1}`, body)
}
