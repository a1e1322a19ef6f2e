package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/candidates"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/scorer"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/tracing"
)

// Mode selects which fields a query is ranked on.
type Mode string

const (
	ModeFused  Mode = "fused"
	ModeBody   Mode = "body"
	ModeTitle  Mode = "title"
	ModeAnchor Mode = "anchor"
)

var Modes = []Mode{ModeFused, ModeBody, ModeTitle, ModeAnchor}

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFused, ModeBody, ModeTitle, ModeAnchor:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown search mode %q", apperrors.ErrInvalidInput, s)
}

// Timings are per-stage wall-clock durations of one query.
type Timings struct {
	Candidates time.Duration `json:"candidates"`
	Body       time.Duration `json:"body"`
	Title      time.Duration `json:"title"`
	Anchor     time.Duration `json:"anchor"`
	Rank       time.Duration `json:"rank"`
	Total      time.Duration `json:"total"`
}

type SearchResult struct {
	Query      string             `json:"query"`
	Mode       Mode               `json:"mode"`
	Terms      []string           `json:"terms"`
	Candidates int                `json:"candidates"`
	Results    []ranker.ScoredDoc `json:"results"`
	Timings    Timings            `json:"timings"`
}

type Config struct {
	Weights            ranker.Weights
	CorpusSize         int
	MaxCandidates      int
	MaxPostingsPerTerm int
	ResultCap          int
	SoftBudget         time.Duration
	// TraceSampleRate is the fraction of queries whose span tree is logged
	// at debug level. Slow queries are always logged.
	TraceSampleRate float64
}

// StoreSource hands out the posting store queries run against.
type StoreSource interface {
	Store() (index.PostingStore, error)
}

type staticSource struct{ store index.PostingStore }

func (s staticSource) Store() (index.PostingStore, error) { return s.store, nil }

// Static serves every query from store.
func Static(store index.PostingStore) StoreSource {
	return staticSource{store: store}
}

type Executor struct {
	source  StoreSource
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds an executor. m may be nil.
func New(source StoreSource, cfg Config, m *metrics.Metrics) *Executor {
	return &Executor{
		source:  source,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Config() Config {
	return e.cfg
}

// Execute runs plan in the given mode. An empty plan yields an empty result.
// Errors are ErrNotReady before the index is published and ErrTimeout when
// ctx ends mid-query.
func (e *Executor) Execute(ctx context.Context, mode Mode, plan *parser.QueryPlan) (*SearchResult, error) {
	store, err := e.source.Store()
	if err != nil {
		return nil, err
	}

	ctx, root := tracing.StartSpan(ctx, "search."+string(mode), logger.RequestID(ctx))
	result := &SearchResult{
		Query:   plan.RawQuery,
		Mode:    mode,
		Terms:   plan.Distinct,
		Results: []ranker.ScoredDoc{},
	}
	if plan.Empty() {
		result.Timings.Total = root.End()
		e.countQuery(mode, "empty")
		return result, nil
	}

	sc := scorer.New(store, e.cfg.CorpusSize, e.readFailed)
	switch mode {
	case ModeFused:
		e.executeFused(ctx, store, sc, plan, result)
	case ModeBody:
		body := stage(ctx, "body", &result.Timings.Body, func(ctx context.Context) scorer.ScoreMap {
			return sc.BodyTFIDF(ctx, plan.TermCounts, nil)
		})
		e.rank(ctx, result, ranker.Inputs{Body: body, Weights: ranker.Weights{Body: 1}, ResultCap: e.cfg.ResultCap})
	case ModeTitle:
		title := stage(ctx, "title", &result.Timings.Title, func(ctx context.Context) scorer.ScoreMap {
			return sc.BinaryMatch(ctx, index.FieldTitle, plan.Distinct, nil)
		})
		e.rank(ctx, result, ranker.Inputs{Title: title, Weights: ranker.Weights{Title: 1}})
	case ModeAnchor:
		anchor := stage(ctx, "anchor", &result.Timings.Anchor, func(ctx context.Context) scorer.ScoreMap {
			return sc.BinaryMatch(ctx, index.FieldAnchor, plan.Distinct, nil)
		})
		e.rank(ctx, result, ranker.Inputs{Anchor: anchor, Weights: ranker.Weights{Anchor: 1}})
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", apperrors.ErrInvalidInput, mode)
	}
	result.Timings.Total = root.End()

	if err := ctx.Err(); err != nil {
		e.countQuery(mode, "error")
		return nil, fmt.Errorf("%w: %s query %q: %w", apperrors.ErrTimeout, mode, plan.RawQuery, err)
	}
	e.observe(ctx, root, result)
	return result, nil
}

func (e *Executor) executeFused(ctx context.Context, store index.PostingStore, sc *scorer.Scorer, plan *parser.QueryPlan, result *SearchResult) {
	var restrict *candidates.Set
	var candidateIDs []index.DocID
	if e.cfg.MaxCandidates > 0 {
		restrict = stage(ctx, "candidates", &result.Timings.Candidates, func(ctx context.Context) *candidates.Set {
			return candidates.Generate(ctx, store, plan.Distinct, candidates.Limits{
				MaxCandidates:      e.cfg.MaxCandidates,
				MaxPostingsPerTerm: e.cfg.MaxPostingsPerTerm,
				OnReadError:        e.readFailed,
			})
		})
		result.Candidates = restrict.Len()
		if e.metrics != nil {
			e.metrics.CandidateSetSize.Observe(float64(result.Candidates))
		}
		if restrict.Empty() {
			return
		}
		candidateIDs = restrict.ToArray()
	}

	// each stage owns its map; the snapshot is read concurrently
	var body, title, anchor scorer.ScoreMap
	var g errgroup.Group
	g.Go(func() error {
		body = stage(ctx, "body", &result.Timings.Body, func(ctx context.Context) scorer.ScoreMap {
			return sc.BodyTFIDF(ctx, plan.TermCounts, restrict)
		})
		return nil
	})
	g.Go(func() error {
		title = stage(ctx, "title", &result.Timings.Title, func(ctx context.Context) scorer.ScoreMap {
			return sc.BinaryMatch(ctx, index.FieldTitle, plan.Distinct, restrict)
		})
		return nil
	})
	g.Go(func() error {
		anchor = stage(ctx, "anchor", &result.Timings.Anchor, func(ctx context.Context) scorer.ScoreMap {
			return sc.BinaryMatch(ctx, index.FieldAnchor, plan.Distinct, restrict)
		})
		return nil
	})
	g.Wait()

	if restrict == nil {
		result.Candidates = len(scorer.UnionKeys(body, title, anchor))
	}
	e.rank(ctx, result, ranker.Inputs{
		Body:         body,
		Title:        title,
		Anchor:       anchor,
		CandidateIDs: candidateIDs,
		Weights:      e.cfg.Weights,
		ResultCap:    e.cfg.ResultCap,
	})
}

func (e *Executor) rank(ctx context.Context, result *SearchResult, in ranker.Inputs) {
	result.Results = stage(ctx, "rank", &result.Timings.Rank, func(context.Context) []ranker.ScoredDoc {
		return ranker.Rank(in)
	})
}

// stage runs fn under a child span and stores its duration in d.
func stage[T any](ctx context.Context, name string, d *time.Duration, fn func(context.Context) T) T {
	ctx, span := tracing.StartChildSpan(ctx, name)
	out := fn(ctx)
	*d = span.End()
	return out
}

func (e *Executor) readFailed(field index.Field, term string, err error) {
	if e.metrics != nil {
		e.metrics.PostingReadFailures.WithLabelValues(string(field)).Inc()
	}
}

func (e *Executor) countQuery(mode Mode, resultType string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(string(mode), resultType).Inc()
	}
}

func (e *Executor) observe(ctx context.Context, root *tracing.Span, result *SearchResult) {
	t := result.Timings
	log := logger.FromContext(ctx).With("component", "query-executor")
	log.Info("query executed",
		"mode", result.Mode,
		"query", result.Query,
		"terms", result.Terms,
		"candidates", result.Candidates,
		"results", len(result.Results),
		"total_ms", t.Total.Milliseconds(),
		"candidates_ms", t.Candidates.Milliseconds(),
		"body_ms", t.Body.Milliseconds(),
		"title_ms", t.Title.Milliseconds(),
		"anchor_ms", t.Anchor.Milliseconds(),
	)

	slow := e.cfg.SoftBudget > 0 && t.Total > e.cfg.SoftBudget
	if slow {
		log.Warn("query exceeded soft budget",
			"mode", result.Mode,
			"query", result.Query,
			"elapsed", t.Total.String(),
			"budget", e.cfg.SoftBudget.String(),
		)
		root.Log(ctx, log, slog.LevelWarn)
	} else if e.cfg.TraceSampleRate > 0 && rand.Float64() < e.cfg.TraceSampleRate {
		root.Log(ctx, log, slog.LevelDebug)
	}

	if e.metrics == nil {
		return
	}
	mode := string(result.Mode)
	resultType := "ok"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(mode, resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(mode).Observe(t.Total.Seconds())
	e.metrics.SearchResultsCount.WithLabelValues(mode).Observe(float64(len(result.Results)))
	for name, d := range root.Stages() {
		e.metrics.SearchStageLatency.WithLabelValues(name).Observe(d.Seconds())
	}
	if slow {
		e.metrics.SlowQueriesTotal.WithLabelValues(mode).Inc()
	}
}
