// Package runner drives a running searcher over HTTP to measure ranking
// quality against judgements, run the pseudo-judgement sanity check, and
// validate the response format of every endpoint.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/qrels"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
)

const (
	TimeRowKey = "__time__"
	pseudoK    = 10
)

type Kind string

const (
	KindQrels  Kind = "qrels"
	KindPseudo Kind = "pseudo"
)

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	Retries         int
	PseudoDepth     int
	SanityThreshold float64
	// TimeLimit fails format checks whose request takes longer.
	TimeLimit time.Duration
}

type Runner struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New builds a runner. client may be nil.
func New(cfg Config, client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.PseudoDepth <= 0 {
		cfg.PseudoDepth = 200
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Runner{
		cfg:    cfg,
		client: client,
		logger: slog.Default().With("component", "eval-runner"),
	}
}

// Rows is a decoded search response with the time row split off.
type Rows struct {
	ServerTime string
	Pairs      [][2]string
}

// IDs returns the first k document ids; k <= 0 returns all.
func (r Rows) IDs(k int) []string {
	n := len(r.Pairs)
	if k > 0 && k < n {
		n = k
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = r.Pairs[i][0]
	}
	return ids
}

type QueryReport struct {
	Query      string              `json:"query"`
	Scores     metrics.QueryScores `json:"scores"`
	Relevant   int                 `json:"relevant"`
	Results    int                 `json:"results"`
	ServerTime string              `json:"server_time"`
	ClientTime time.Duration       `json:"client_time"`
	Error      string              `json:"error,omitempty"`
}

// Report summarises one evaluation run. Failed queries score zero and stay
// in the means.
type Report struct {
	RunID          uuid.UUID       `json:"run_id"`
	Kind           Kind            `json:"kind"`
	BaseURL        string          `json:"base_url"`
	K              int             `json:"k"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
	Summary        metrics.Summary `json:"summary"`
	MeanClientTime time.Duration   `json:"mean_client_time"`
	Failed         int             `json:"failed"`
	Passed         *bool           `json:"passed,omitempty"`
	Queries        []QueryReport   `json:"queries"`
}

// Evaluate runs each judged query against /search and scores the top k.
func (r *Runner) Evaluate(ctx context.Context, qs []qrels.Query, k int) (*Report, error) {
	report := r.newReport(KindQrels, k)
	r.logger.Info("evaluation started", "queries", len(qs), "k", k, "base_url", r.cfg.BaseURL)
	for _, q := range qs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qr := QueryReport{Query: q.Text, Relevant: len(q.Relevant)}
		start := time.Now()
		rows, err := r.Search(ctx, "/search", q.Text)
		qr.ClientTime = time.Since(start)
		if err != nil {
			qr.Error = err.Error()
			report.Failed++
		} else {
			ranked := rows.IDs(0)
			qr.Scores = metrics.Score(q.Relevant, ranked, k)
			qr.Results = len(ranked)
			qr.ServerTime = rows.ServerTime
		}
		r.logQuery(qr, k)
		report.Queries = append(report.Queries, qr)
	}
	r.finish(report)
	return report, nil
}

// PseudoCheck judges each query by the union of the top PseudoDepth ids of
// /search_title and /search_anchor, then scores AP@10 of /search. It passes
// when the mean exceeds SanityThreshold.
func (r *Runner) PseudoCheck(ctx context.Context, queries []string) (*Report, error) {
	report := r.newReport(KindPseudo, pseudoK)
	r.logger.Info("pseudo check started", "queries", len(queries), "depth", r.cfg.PseudoDepth)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qr := QueryReport{Query: q}
		start := time.Now()
		relevant, ranked, serverTime, err := r.pseudoQuery(ctx, q)
		qr.ClientTime = time.Since(start)
		if err != nil {
			qr.Error = err.Error()
			report.Failed++
		} else {
			qr.Relevant = len(relevant)
			qr.Scores = metrics.Score(relevant, ranked, pseudoK)
			qr.Results = len(ranked)
			qr.ServerTime = serverTime
		}
		r.logQuery(qr, pseudoK)
		report.Queries = append(report.Queries, qr)
	}
	r.finish(report)
	passed := report.Summary.MAP > r.cfg.SanityThreshold
	report.Passed = &passed
	return report, nil
}

func (r *Runner) pseudoQuery(ctx context.Context, q string) (metrics.Relevant, []string, string, error) {
	title, err := r.Search(ctx, "/search_title", q)
	if err != nil {
		return nil, nil, "", err
	}
	anchor, err := r.Search(ctx, "/search_anchor", q)
	if err != nil {
		return nil, nil, "", err
	}
	relevant := metrics.NewRelevant(title.IDs(r.cfg.PseudoDepth)...)
	for _, id := range anchor.IDs(r.cfg.PseudoDepth) {
		relevant[id] = struct{}{}
	}
	search, err := r.Search(ctx, "/search", q)
	if err != nil {
		return nil, nil, "", err
	}
	return relevant, search.IDs(pseudoK), search.ServerTime, nil
}

func (r *Runner) newReport(kind Kind, k int) *Report {
	return &Report{
		RunID:     uuid.New(),
		Kind:      kind,
		BaseURL:   r.cfg.BaseURL,
		K:         k,
		StartedAt: time.Now().UTC(),
		Queries:   []QueryReport{},
	}
}

func (r *Runner) finish(report *Report) {
	scores := make([]metrics.QueryScores, len(report.Queries))
	var client time.Duration
	for i, q := range report.Queries {
		scores[i] = q.Scores
		client += q.ClientTime
	}
	report.Summary = metrics.Aggregate(scores)
	if n := len(report.Queries); n > 0 {
		report.MeanClientTime = client / time.Duration(n)
	}
	report.Duration = time.Since(report.StartedAt)
	r.logger.Info("evaluation finished",
		"kind", report.Kind,
		"queries", report.Summary.Queries,
		"failed", report.Failed,
		"map", report.Summary.MAP,
		"mean_precision", report.Summary.MeanPrecision,
		"mean_recall", report.Summary.MeanRecall,
		"mean_client_time", report.MeanClientTime.String(),
	)
}

func (r *Runner) logQuery(q QueryReport, k int) {
	if q.Error != "" {
		r.logger.Warn("query failed", "query", q.Query, "error", q.Error)
		return
	}
	r.logger.Info("query scored",
		"query", q.Query,
		"k", k,
		"ap", q.Scores.AP,
		"precision", q.Scores.Precision,
		"recall", q.Scores.Recall,
		"server_time", q.ServerTime,
		"client_time", q.ClientTime.String(),
		"results", q.Results,
	)
}

// Search GETs endpoint?query=q, retrying transport errors and 5xx replies.
func (r *Runner) Search(ctx context.Context, endpoint, q string) (Rows, error) {
	body, err := r.get(ctx, endpoint, q)
	if err != nil {
		return Rows{}, err
	}
	return DecodeRows(body)
}

func (r *Runner) get(ctx context.Context, endpoint, q string) ([]byte, error) {
	u := r.cfg.BaseURL + endpoint + "?" + url.Values{"query": {q}}.Encode()
	var body []byte
	err := resilience.Retry(ctx, "GET "+endpoint, resilience.RetryConfig{
		MaxAttempts:    r.cfg.Retries + 1,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		JitterFraction: 0.1,
	}, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("building request: %w", err))
		}
		var status int
		body, status, err = r.do(req)
		if err != nil {
			return err
		}
		return statusError(endpoint, status, body)
	})
	return body, err
}

func (r *Runner) do(req *http.Request) ([]byte, int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
	}
	return body, resp.StatusCode, nil
}

// statusError retries 5xx and gives up on other non-200 replies.
func statusError(endpoint string, status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	err := fmt.Errorf("%s: status %d: %s", endpoint, status, snippet(body))
	if status >= 500 {
		return err
	}
	return resilience.Permanent(err)
}

// DecodeRows parses a search response, splitting off a leading time row.
func DecodeRows(body []byte) (Rows, error) {
	var pairs [][2]string
	if err := json.Unmarshal(body, &pairs); err != nil {
		return Rows{}, fmt.Errorf("decoding search response: %w", err)
	}
	var rows Rows
	if len(pairs) > 0 && pairs[0][0] == TimeRowKey {
		rows.ServerTime = pairs[0][1]
		pairs = pairs[1:]
	}
	rows.Pairs = pairs
	return rows, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
