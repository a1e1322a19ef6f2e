// Package integration builds a small index on disk with the offline builder,
// serves it through the real handler stack, and drives it with the
// evaluation runner. External services (Redis, Kafka, Postgres) are left out.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/qrels"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/runner"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/titles"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/middleware"
)

const corpusJSONL = `{"id": 1, "title": "Python (programming language)", "body": "Python is a programming language created by Guido. Python emphasizes readability.", "anchors": ["python language", "python"]}
{"id": 2, "title": "Python (snake)", "body": "Pythons are large snakes. The python snake constricts prey.", "anchors": ["python snake"]}
{"id": 3, "title": "Monty Python", "body": "Monty Python was a comedy group. Their humour influenced the Python language name."}
{"id": 4, "title": "Java (programming language)", "body": "Java is a programming language developed at Sun.", "anchors": ["java"]}
{"id": 5, "title": "Snake", "body": "Snakes are elongated reptiles.", "anchors": ["snakes"]}
`

const qrelsJSON = `{"python language": ["1", 3], "snake": ["5", "2"]}`

type platform struct {
	server     *httptest.Server
	gate       *snapshot.Gate
	aggregator *analytics.Aggregator
	dataDir    string
}

// buildIndex runs the same steps as cmd/indexer over corpusJSONL.
func buildIndex(t *testing.T) (dataDir, titlesPath string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "index")
	titlesPath = filepath.Join(dir, "titles.db")

	builder := indexer.NewBuilder(indexer.BuilderConfig{DataDir: dataDir, Shards: 2})
	tw, err := titles.Create(titlesPath, 2)
	require.NoError(t, err)

	reader := corpus.NewReader(strings.NewReader(corpusJSONL))
	for {
		doc, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NoError(t, builder.AddDocument(doc))
		require.NoError(t, tw.Put(doc.ID, doc.Title))
	}
	require.NoError(t, builder.Flush())
	require.NoError(t, tw.Close())
	require.Equal(t, 5, reader.Stats().Read)
	return dataDir, titlesPath
}

func startPlatform(t *testing.T, publish bool) *platform {
	t.Helper()
	dataDir, titlesPath := buildIndex(t)

	titleStore, err := titles.Open(titlesPath)
	require.NoError(t, err)
	t.Cleanup(func() { titleStore.Close() })

	gate := snapshot.NewGate()
	if publish {
		snap, err := snapshot.NewLoader(dataDir, 10*time.Second).Load(context.Background())
		require.NoError(t, err)
		require.NoError(t, gate.Publish(snap))
		t.Cleanup(func() { snap.Close() })
	}

	exec := executor.New(gate, executor.Config{
		Weights:            ranker.DefaultWeights(),
		CorpusSize:         5,
		MaxCandidates:      100,
		MaxPostingsPerTerm: 100,
		ResultCap:          100,
	}, nil)
	agg := analytics.NewAggregator()
	h := handler.New(exec, nil, titleStore, nil, agg)

	mux := http.NewServeMux()
	h.Register(mux)
	server := httptest.NewServer(middleware.Chain(mux, middleware.RequestID))
	t.Cleanup(server.Close)

	return &platform{server: server, gate: gate, aggregator: agg, dataDir: dataDir}
}

func getRows(t *testing.T, url string) [][2]string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows [][2]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	return rows
}

func TestSearchOverBuiltIndex(t *testing.T) {
	p := startPlatform(t, true)

	rows := getRows(t, p.server.URL+"/search?query=python+language")
	require.NotEmpty(t, rows)
	assert.Equal(t, handler.TimeRowKey, rows[0][0])
	assert.Equal(t, [][2]string{
		{"1", "Python (programming language)"},
		{"2", "Python (snake)"},
		{"3", "Monty Python"},
		{"4", "Java (programming language)"},
	}, rows[1:])

	// candidates come from the body field only, so doc 5 ("snakes") is out
	rows = getRows(t, p.server.URL+"/search?query=snake")
	assert.Equal(t, [][2]string{{"2", "Python (snake)"}}, rows[1:])

	rows = getRows(t, p.server.URL+"/search_title?query=snake")
	assert.Equal(t, [][2]string{{"2", "Python (snake)"}, {"5", "Snake"}}, rows[1:])

	rows = getRows(t, p.server.URL+"/search_anchor?query=python")
	assert.Equal(t, [][2]string{{"1", "Python (programming language)"}, {"2", "Python (snake)"}}, rows[1:])

	rows = getRows(t, p.server.URL+"/search_body?query=zzzunknown")
	assert.Len(t, rows, 1)

	stats := p.aggregator.Stats()
	assert.Equal(t, int64(5), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
}

func TestEvaluationAgainstBuiltIndex(t *testing.T) {
	p := startPlatform(t, true)
	r := runner.New(runner.Config{
		BaseURL:         p.server.URL,
		Timeout:         5 * time.Second,
		SanityThreshold: 0.1,
	}, nil)

	qs, err := qrels.Parse([]byte(qrelsJSON))
	require.NoError(t, err)

	report, err := r.Evaluate(context.Background(), qs, 10)
	require.NoError(t, err)
	require.Len(t, report.Queries, 2)
	assert.Zero(t, report.Failed)
	assert.InDelta(t, (1+2.0/3)/2, report.Queries[0].Scores.AP, 1e-9)
	assert.InDelta(t, 0.5, report.Queries[1].Scores.AP, 1e-9)
	assert.InDelta(t, ((1+2.0/3)/2+0.5)/2, report.Summary.MAP, 1e-9)
	assert.InDelta(t, 0.15, report.Summary.MeanPrecision, 1e-9)

	pseudo, err := r.PseudoCheck(context.Background(), qrels.Texts(qs))
	require.NoError(t, err)
	require.NotNil(t, pseudo.Passed)
	assert.True(t, *pseudo.Passed)
	assert.InDelta(t, 1.0, pseudo.Queries[0].Scores.AP, 1e-9)

	format := r.CheckFormat(context.Background(), qrels.Texts(qs), 100)
	assert.True(t, format.Passed, "%+v", format.Checks)
}

func TestNotReadyBeforePublish(t *testing.T) {
	p := startPlatform(t, false)

	resp, err := http.Get(p.server.URL + "/search?query=python")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	snap, err := snapshot.NewLoader(p.dataDir, 10*time.Second).Load(context.Background())
	require.NoError(t, err)
	defer snap.Close()
	require.NoError(t, p.gate.Publish(snap))

	rows := getRows(t, p.server.URL+"/search?query=python")
	assert.Len(t, rows, 4)
}
