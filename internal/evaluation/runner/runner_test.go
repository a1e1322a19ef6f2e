package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/qrels"
)

func rows(ids ...string) [][2]string {
	out := [][2]string{{TimeRowKey, "0.012s (12ms)"}}
	for _, id := range ids {
		out = append(out, [2]string{id, "Title " + id})
	}
	return out
}

type fakeSearcher struct {
	search, title, anchor map[string][][2]string
	failures              atomic.Int32
}

func (f *fakeSearcher) handler() http.Handler {
	mux := http.NewServeMux()
	serve := func(m map[string][][2]string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if f.failures.Load() > 0 {
				f.failures.Add(-1)
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			q := r.URL.Query().Get("query")
			if q == "" {
				json.NewEncoder(w).Encode([][2]string{})
				return
			}
			res, ok := m[q]
			if !ok {
				res = rows()
			}
			json.NewEncoder(w).Encode(res)
		}
	}
	mux.HandleFunc("GET /search", serve(f.search))
	mux.HandleFunc("GET /search_body", serve(f.search))
	mux.HandleFunc("GET /search_title", serve(f.title))
	mux.HandleFunc("GET /search_anchor", serve(f.anchor))
	signal := func(w http.ResponseWriter, r *http.Request) {
		var ids []any
		json.NewDecoder(r.Body).Decode(&ids)
		json.NewEncoder(w).Encode(make([]int, len(ids)))
	}
	mux.HandleFunc("POST /get_pagerank", signal)
	mux.HandleFunc("POST /get_pageview", signal)
	return mux
}

func newRunner(t *testing.T, f *fakeSearcher) *Runner {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:         srv.URL + "/",
		Timeout:         5 * time.Second,
		Retries:         2,
		PseudoDepth:     200,
		SanityThreshold: 0.1,
	}, nil)
}

func TestEvaluateScoresEachQuery(t *testing.T) {
	f := &fakeSearcher{search: map[string][][2]string{
		"cats": rows("x", "a", "y", "b", "c"),
		"dogs": rows("d"),
	}}
	r := newRunner(t, f)

	report, err := r.Evaluate(context.Background(), []qrels.Query{
		{Text: "cats", Relevant: metrics.NewRelevant("a", "b", "c")},
		{Text: "dogs", Relevant: metrics.NewRelevant("d", "e")},
	}, 10)
	require.NoError(t, err)

	require.Len(t, report.Queries, 2)
	assert.Equal(t, KindQrels, report.Kind)
	assert.InDelta(t, 0.5333, report.Queries[0].Scores.AP, 1e-4)
	assert.Equal(t, "0.012s (12ms)", report.Queries[0].ServerTime)
	assert.Equal(t, 5, report.Queries[0].Results)
	assert.InDelta(t, 0.5, report.Queries[1].Scores.AP, 1e-12)
	assert.InDelta(t, (0.5333+0.5)/2, report.Summary.MAP, 1e-4)
	assert.InDelta(t, (0.3+0.1)/2, report.Summary.MeanPrecision, 1e-12)
	assert.Zero(t, report.Failed)
	assert.NotEqual(t, [16]byte{}, [16]byte(report.RunID))
}

func TestEvaluateRetriesServerErrors(t *testing.T) {
	f := &fakeSearcher{search: map[string][][2]string{"cats": rows("a")}}
	f.failures.Store(2)
	r := newRunner(t, f)

	report, err := r.Evaluate(context.Background(), []qrels.Query{
		{Text: "cats", Relevant: metrics.NewRelevant("a")},
	}, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Failed)
	assert.InDelta(t, 1.0, report.Summary.MAP, 1e-12)
}

func TestEvaluateRecordsFailedQueriesAsZero(t *testing.T) {
	f := &fakeSearcher{search: map[string][][2]string{"cats": rows("a")}}
	f.failures.Store(100)
	r := newRunner(t, f)

	report, err := r.Evaluate(context.Background(), []qrels.Query{
		{Text: "cats", Relevant: metrics.NewRelevant("a")},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.Queries[0].Error)
	assert.Zero(t, report.Summary.MAP)
	assert.Equal(t, 1, report.Summary.Queries)
}

func TestEvaluateEmpty(t *testing.T) {
	r := newRunner(t, &fakeSearcher{})
	report, err := r.Evaluate(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.Summary{}, report.Summary)
}

func TestPseudoCheck(t *testing.T) {
	f := &fakeSearcher{
		search: map[string][][2]string{"python": rows("1", "2", "3", "4")},
		title:  map[string][][2]string{"python": rows("1", "3")},
		anchor: map[string][][2]string{"python": rows("3", "9")},
	}
	r := newRunner(t, f)

	report, err := r.PseudoCheck(context.Background(), []string{"python"})
	require.NoError(t, err)
	require.NotNil(t, report.Passed)
	q := report.Queries[0]
	assert.Equal(t, 3, q.Relevant)
	// hits at 1 and 3: (1/1 + 2/3) / 3
	assert.InDelta(t, (1+2.0/3)/3, q.Scores.AP, 1e-12)
	assert.True(t, *report.Passed)
	assert.Equal(t, 10, report.K)
}

func TestPseudoCheckFailsBelowThreshold(t *testing.T) {
	f := &fakeSearcher{
		search: map[string][][2]string{"python": rows("7")},
		title:  map[string][][2]string{"python": rows("1")},
	}
	report, err := newRunner(t, f).PseudoCheck(context.Background(), []string{"python"})
	require.NoError(t, err)
	assert.False(t, *report.Passed)
}

func TestCheckFormatPasses(t *testing.T) {
	f := &fakeSearcher{search: map[string][][2]string{"python": rows("1", "2")}}
	report := newRunner(t, f).CheckFormat(context.Background(), []string{"python"}, 100)
	for _, c := range report.Checks {
		assert.True(t, c.OK, "%s: %s", c.Name, c.Detail)
	}
	assert.True(t, report.Passed)
	assert.Len(t, report.Checks, 6)
}

func TestCheckFormatFlagsTooManyRows(t *testing.T) {
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	f := &fakeSearcher{search: map[string][][2]string{"python": rows(ids...)}}
	report := newRunner(t, f).CheckFormat(context.Background(), []string{"python"}, 2)
	assert.False(t, report.Passed)
	assert.False(t, report.Checks[0].OK)
	assert.Contains(t, report.Checks[0].Detail, "at most 2")
}

func TestValidateSearchResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `[["__time__","0.385s (385ms)"],["12","Python"]]`, true},
		{"time only", `[["__time__","1s (1000ms)"]]`, true},
		{"not list", `{"a":1}`, false},
		{"missing time", `[["12","Python"]]`, false},
		{"bad time", `[["__time__","385 ms"]]`, false},
		{"triple", `[["__time__","0.1s (100ms)"],["1","a","b"]]`, false},
		{"number id", `[["__time__","0.1s (100ms)"],[1,"a"]]`, false},
		{"blank title", `[["__time__","0.1s (100ms)"],["1"," "]]`, false},
		{"empty", `[]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearchResponse([]byte(tt.body), true, 100)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateSignalResponse(t *testing.T) {
	assert.NoError(t, ValidateSignalResponse([]byte(`[0, 0.5]`), 2))
	assert.Error(t, ValidateSignalResponse([]byte(`[0]`), 2))
	assert.Error(t, ValidateSignalResponse([]byte(`["x"]`), 1))
}

func TestDecodeRows(t *testing.T) {
	r, err := DecodeRows([]byte(`[["__time__","0.1s (100ms)"],["5","Five"],["6","Six"]]`))
	require.NoError(t, err)
	assert.Equal(t, "0.1s (100ms)", r.ServerTime)
	assert.Equal(t, []string{"5", "6"}, r.IDs(0))
	assert.Equal(t, []string{"5"}, r.IDs(1))

	r, err = DecodeRows([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, r.IDs(10))
}
