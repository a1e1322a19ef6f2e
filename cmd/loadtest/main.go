// Command loadtest drives concurrent queries at a searcher and reports
// throughput, client latency percentiles, and how the server's own
// __time__ figures compare.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 8 -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/qrels"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/runner"
)

var serverMillis = regexp.MustCompile(`\((\d+)ms\)`)

type Config struct {
	BaseURL     string
	Endpoint    string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	emptyCount    atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	serverTimes []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		serverTimes: make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// RecordRequest tallies one request. body is the decoded reply when the
// request succeeded.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, body []byte, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}

	s.mu.Lock()
	s.statusCodes[statusCode]++
	s.mu.Unlock()

	if statusCode != http.StatusOK {
		s.errorCount.Add(1)
		return
	}
	rows, err := runner.DecodeRows(body)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.successCount.Add(1)
	if len(rows.Pairs) == 0 {
		s.emptyCount.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, duration)
	if m := serverMillis.FindStringSubmatch(rows.ServerTime); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			s.serverTimes = append(s.serverTimes, time.Duration(ms)*time.Millisecond)
		}
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	endpoint := flag.String("endpoint", "/search", "search endpoint to load")
	concurrency := flag.Int("concurrency", 8, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queriesPath := flag.String("queries", "", "query list or qrels file (default: built-in list)")
	flag.Parse()

	queries := []string{
		"python programming language",
		"united states",
		"world war ii",
		"machine learning",
		"barack obama",
		"photosynthesis",
		"roman empire",
		"quantum mechanics",
		"climate change",
		"general relativity",
		"football world cup",
		"renaissance painting",
		"operating system kernel",
		"amazon rainforest",
		"jazz music history",
	}
	if *queriesPath != "" {
		loaded, err := qrels.LoadQueries(*queriesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
		if len(loaded) > 0 {
			queries = loaded
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Endpoint:    *endpoint,
		Concurrency: max(*concurrency, 1),
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== wikisearch load test ===")
	fmt.Printf("Target:      %s%s\n", cfg.BaseURL, cfg.Endpoint)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				u := cfg.BaseURL + cfg.Endpoint + "?" + url.Values{"query": {query}}.Encode()
				start := time.Now()
				status, body, err := get(gctx, client, u)
				if gctx.Err() != nil {
					return nil
				}
				stats.RecordRequest(time.Since(start), status, body, err)
			}
			return nil
		})
	}
	g.Wait()

	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func get(ctx context.Context, client *http.Client, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Empty results:   %d\n", stats.emptyCount.Load())
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	printLatency("Client latency", stats.latencies)
	printLatency("Server __time__", stats.serverTimes)

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func printLatency(title string, samples []time.Duration) {
	if len(samples) == 0 {
		return
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg := sum / time.Duration(len(sorted))

	var sumSquared float64
	for _, l := range sorted {
		diff := float64(l - avg)
		sumSquared += diff * diff
	}

	fmt.Println()
	fmt.Printf("=== %s ===\n", title)
	fmt.Printf("Min:    %s\n", sorted[0])
	fmt.Printf("Avg:    %s\n", avg)
	fmt.Printf("P50:    %s\n", percentile(sorted, 50))
	fmt.Printf("P90:    %s\n", percentile(sorted, 90))
	fmt.Printf("P95:    %s\n", percentile(sorted, 95))
	fmt.Printf("P99:    %s\n", percentile(sorted, 99))
	fmt.Printf("Max:    %s\n", sorted[len(sorted)-1])
	fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(sorted)))))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
