// Package corpus reads the JSON-lines document dump the offline builder
// indexes. Each line is one object {"id", "title", "body", "anchors"}.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

const maxLineBytes = 64 << 20

// Stats counts what a Reader has seen.
type Stats struct {
	Lines   int `json:"lines"`
	Read    int `json:"read"`
	Skipped int `json:"skipped"`
}

// Reader yields valid documents from a JSON-lines stream. Blank lines are
// ignored; malformed or invalid lines are logged and skipped unless Strict
// is set.
type Reader struct {
	scanner *bufio.Scanner
	Strict  bool
	stats   Stats
	logger  *slog.Logger
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
	return &Reader{
		scanner: s,
		logger:  slog.Default().With("component", "corpus-reader"),
	}
}

// Next returns the next valid document, or io.EOF at the end of input.
func (r *Reader) Next() (indexer.Document, error) {
	for r.scanner.Scan() {
		r.stats.Lines++
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var doc indexer.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			err = fmt.Errorf("%w: line %d: %w", apperrors.ErrInvalidInput, r.stats.Lines, err)
			if r.Strict {
				return indexer.Document{}, err
			}
			r.skip(err)
			continue
		}
		if err := Validate(&doc); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Line = r.stats.Lines
			}
			if r.Strict {
				return indexer.Document{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
			}
			r.skip(err)
			continue
		}
		r.stats.Read++
		return doc, nil
	}
	if err := r.scanner.Err(); err != nil {
		return indexer.Document{}, fmt.Errorf("reading corpus: %w", err)
	}
	return indexer.Document{}, io.EOF
}

func (r *Reader) skip(err error) {
	r.stats.Skipped++
	r.logger.Warn("skipping document", "error", err)
}

func (r *Reader) Stats() Stats {
	return r.stats
}
