package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. Get reports an absent key
// with an error satisfying pkgredis.IsMiss.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Stats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Errors       int64  `json:"errors"`
	BreakerState string `json:"breaker_state"`
}

// QueryCache stores executor results keyed by mode and the query's terms.
// Concurrent misses for the same key are computed once. Backend failures
// trip a circuit breaker, after which queries bypass the cache.
type QueryCache struct {
	backend   Backend
	ttl       time.Duration
	namespace string
	breaker   *resilience.CircuitBreaker
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64
}

// New returns a cache over backend. namespace separates entries computed
// under different ranking configurations. m may be nil.
func New(backend Backend, ttl time.Duration, namespace string, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		backend:   backend,
		ttl:       ttl,
		namespace: namespace,
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues("result-cache").Set(float64(resilience.StateClosed))
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	c.breaker = resilience.NewCircuitBreaker("result-cache", cfg)
	return c
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) Get(ctx context.Context, mode executor.Mode, plan *parser.QueryPlan) (*executor.SearchResult, bool) {
	key := c.buildKey(mode, plan)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsMiss(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.miss()
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.errors.Add(1)
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "mode", mode, "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, mode executor.Mode, plan *parser.QueryPlan, result *executor.SearchResult) {
	key := c.buildKey(mode, plan)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once per key
// across concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	mode executor.Mode,
	plan *parser.QueryPlan,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, mode, plan); ok {
		return result, true, nil
	}
	key := c.buildKey(mode, plan)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, mode, plan, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.breaker.Reset()
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Errors:       c.errors.Load(),
		BreakerState: c.breaker.GetState().String(),
	}
}

// BreakerState exposes the breaker for the circuit_breaker_state gauge.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *QueryCache) buildKey(mode executor.Mode, plan *parser.QueryPlan) string {
	raw := fmt.Sprintf("%s|%s|%s", c.namespace, mode, normalizeQuery(plan))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery renders the plan's term multiset. Ranking depends only on
// which terms occur and how often, not on their order.
func normalizeQuery(plan *parser.QueryPlan) string {
	terms := append([]string(nil), plan.Tokens...)
	sort.Strings(terms)
	return strings.Join(terms, ",")
}
