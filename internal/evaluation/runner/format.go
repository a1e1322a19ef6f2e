package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var timePattern = regexp.MustCompile(`^\s*\d+(\.\d+)?s\s*\(\d+ms\)\s*$`)

// DefaultFormatQueries are used when no query file is given.
var DefaultFormatQueries = []string{
	"python",
	"united states",
	"computer science",
	"barack obama",
	"machine learning",
}

var signalProbeIDs = []string{"1", "2", "12345", "999999"}

type Check struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

type FormatReport struct {
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// CheckFormat exercises every endpoint once and validates the reply shape.
// Capped endpoints may return at most resultCap rows besides the time row.
func (r *Runner) CheckFormat(ctx context.Context, queries []string, resultCap int) *FormatReport {
	if len(queries) == 0 {
		queries = DefaultFormatQueries
	}
	report := &FormatReport{Passed: true}
	add := func(c Check) {
		if !c.OK {
			report.Passed = false
			r.logger.Error("format check failed", "check", c.Name, "detail", c.Detail)
		} else {
			r.logger.Info("format check passed", "check", c.Name, "elapsed", c.Elapsed.String())
		}
		report.Checks = append(report.Checks, c)
	}

	for _, q := range queries[:min(2, len(queries))] {
		add(r.checkSearch(ctx, "/search", q, resultCap))
	}
	add(r.checkSearch(ctx, "/search_body", queries[0], resultCap))
	add(r.checkSearch(ctx, "/search_title", queries[0], 0))
	add(r.checkSearch(ctx, "/search_anchor", queries[0], 0))
	add(r.checkSignal(ctx, "/get_pagerank"))
	add(r.checkSignal(ctx, "/get_pageview"))
	return report
}

func (r *Runner) checkSearch(ctx context.Context, endpoint, q string, maxResults int) Check {
	c := Check{Name: fmt.Sprintf("GET %s?query=%q", endpoint, q)}
	start := time.Now()
	body, err := r.get(ctx, endpoint, q)
	c.Elapsed = time.Since(start)
	switch {
	case err != nil:
		c.Detail = err.Error()
	case r.cfg.TimeLimit > 0 && c.Elapsed > r.cfg.TimeLimit:
		c.Detail = fmt.Sprintf("took %s, limit %s", c.Elapsed.Round(time.Millisecond), r.cfg.TimeLimit)
	default:
		if err := ValidateSearchResponse(body, true, maxResults); err != nil {
			c.Detail = err.Error()
		} else {
			c.OK = true
		}
	}
	return c
}

func (r *Runner) checkSignal(ctx context.Context, endpoint string) Check {
	c := Check{Name: "POST " + endpoint}
	payload, err := json.Marshal(signalProbeIDs)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	req.Header.Set("Content-Type", "application/json")
	body, status, err := r.do(req)
	c.Elapsed = time.Since(start)
	if err == nil {
		err = statusError(endpoint, status, body)
	}
	if err == nil {
		err = ValidateSignalResponse(body, len(signalProbeIDs))
	}
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	return c
}

// ValidateSearchResponse checks that body is a list of [string, string]
// pairs, optionally led by a well-formed time row, that the first rows have
// non-blank ids and titles, and that at most maxResults (if > 0) result rows
// follow.
func ValidateSearchResponse(body []byte, requireTime bool, maxResults int) error {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return errors.New("response is not a JSON list")
	}
	pairs := make([][2]string, len(items))
	for i, item := range items {
		var pair []any
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("row %d is not a pair", i)
		}
		for j, v := range pair {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("row %d is not a [string, string] pair", i)
			}
			pairs[i][j] = s
		}
	}

	start := 0
	if requireTime {
		if len(pairs) == 0 {
			return fmt.Errorf("empty response; expected %s as the first row", TimeRowKey)
		}
		if pairs[0][0] != TimeRowKey {
			return fmt.Errorf("first row must be [%q, ...], got %q", TimeRowKey, pairs[0][0])
		}
		if !timePattern.MatchString(pairs[0][1]) {
			return fmt.Errorf("time row must look like \"0.385s (385ms)\", got %q", pairs[0][1])
		}
		start = 1
	}
	for i := start; i < len(pairs) && i < start+5; i++ {
		if strings.TrimSpace(pairs[i][0]) == "" {
			return fmt.Errorf("empty doc id at row %d", i)
		}
		if strings.TrimSpace(pairs[i][1]) == "" {
			return fmt.Errorf("empty title at row %d", i)
		}
	}
	if n := len(pairs) - start; maxResults > 0 && n > maxResults {
		return fmt.Errorf("expected at most %d results, got %d", maxResults, n)
	}
	return nil
}

// ValidateSignalResponse checks that body is a JSON list of n numbers.
func ValidateSignalResponse(body []byte, n int) error {
	var values []json.Number
	if err := json.Unmarshal(body, &values); err != nil {
		return errors.New("response is not a JSON list of numbers")
	}
	if len(values) != n {
		return fmt.Errorf("expected %d values, got %d", n, len(values))
	}
	return nil
}
