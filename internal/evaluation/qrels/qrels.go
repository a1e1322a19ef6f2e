// Package qrels loads relevance judgements and query lists for evaluation.
package qrels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/metrics"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// Query is one judged query.
type Query struct {
	Text     string
	Relevant metrics.Relevant
}

// Load reads a JSON object mapping query text to a list of relevant ids,
// given as strings or numbers. Queries keep file order.
func Load(path string) ([]Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading qrels %s: %w", path, err)
	}
	qs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing qrels %s: %w", path, err)
	}
	return qs, nil
}

func Parse(data []byte) ([]Query, error) {
	var out []Query
	err := walkObject(data, func(key string, value json.RawMessage) error {
		ids, err := decodeIDs(value)
		if err != nil {
			return fmt.Errorf("query %q: %w", key, err)
		}
		out = append(out, Query{Text: key, Relevant: metrics.NewRelevant(ids...)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Truncate keeps the first max queries; max <= 0 keeps all.
func Truncate(qs []Query, max int) []Query {
	if max > 0 && len(qs) > max {
		return qs[:max]
	}
	return qs
}

// Texts returns the query strings in order.
func Texts(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

// LoadQueries reads a query list for checks that need no judgements. It
// accepts a qrels object (its keys), a list of strings, a list of objects
// with a "query", "question" or "text" field, or {"queries": [...]}. Blank
// queries are dropped.
func LoadQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queries %s: %w", path, err)
	}
	qs, err := ParseQueries(data)
	if err != nil {
		return nil, fmt.Errorf("parsing queries %s: %w", path, err)
	}
	return qs, nil
}

func ParseQueries(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		return queriesFromList(items), nil
	}

	var wrapped struct {
		Queries []json.RawMessage `json:"queries"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Queries) > 0 {
		return queriesFromList(wrapped.Queries), nil
	}

	var out []string
	err := walkObject(data, func(key string, _ json.RawMessage) error {
		if q := strings.TrimSpace(key); q != "" {
			out = append(out, q)
		}
		return nil
	})
	return out, err
}

func queriesFromList(items []json.RawMessage) []string {
	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		for _, field := range []string{"query", "question", "text"} {
			if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
				break
			}
		}
	}
	return out
}

// walkObject visits the members of a top-level JSON object in file order.
func walkObject(data []byte, visit func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected a JSON object", apperrors.ErrInvalidInput)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected an object key", apperrors.ErrInvalidInput)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: value of %q: %w", apperrors.ErrInvalidInput, key, err)
		}
		if err := visit(key, value); err != nil {
			return err
		}
	}
	tok, err = dec.Token()
	if err != nil {
		return fmt.Errorf("%w: unterminated object: %w", apperrors.ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return fmt.Errorf("%w: expected end of object", apperrors.ErrInvalidInput)
	}
	return nil
}

func decodeIDs(value json.RawMessage) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("%w: expected a list of ids", apperrors.ErrInvalidInput)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			ids = append(ids, n.String())
			continue
		}
		return nil, fmt.Errorf("%w: id %s is neither a string nor a number", apperrors.ErrInvalidInput, item)
	}
	return ids, nil
}
