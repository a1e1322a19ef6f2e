// Package indexer serves one field's postings from its sharded segment files
// and builds those files offline.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

type location struct {
	reader *segment.Reader
	entry  segment.DictEntry
}

// Engine is the read-only posting store of a single field. The offset
// directories of all the field's shard files are merged when the engine is
// opened; afterwards nothing is mutated, so reads need no locking.
type Engine struct {
	field     index.Field
	dataDir   string
	readers   []*segment.Reader
	directory map[string][]location
	df        map[string]int
	docCount  int64
	logger    *slog.Logger
}

// Open loads every "<field>_*.spdx" shard in dataDir. Any unreadable shard
// fails the whole load.
func Open(ctx context.Context, dataDir string, field index.Field) (*Engine, error) {
	e := &Engine{
		field:     field,
		dataDir:   dataDir,
		directory: make(map[string][]location),
		df:        make(map[string]int),
		logger:    slog.Default().With("component", "field-engine", "field", string(field)),
	}
	if err := e.loadSegments(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadSegments(ctx context.Context) error {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return fmt.Errorf("reading data directory: %w", err)
	}
	prefix := string(e.field) + "_"
	segFiles := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, segment.Extension) {
			segFiles = append(segFiles, name)
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("loading %s segments: %w", e.field, err)
		}
		reader, err := segment.OpenReader(filepath.Join(e.dataDir, name))
		if err != nil {
			return fmt.Errorf("opening segment %s: %w", name, err)
		}
		e.readers = append(e.readers, reader)
		for _, entry := range reader.Dictionary() {
			e.directory[entry.Term] = append(e.directory[entry.Term], location{reader: reader, entry: entry})
			e.df[entry.Term] += entry.DocFreq
		}
		e.docCount += int64(reader.DocCount())
		e.logger.Debug("loaded segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("field segments loaded",
		"segments", len(e.readers),
		"terms", len(e.df),
	)
	return nil
}

// Field returns the field this engine serves.
func (e *Engine) Field() index.Field {
	return e.field
}

// DocumentFrequency returns the term's document frequency summed over all
// shards.
func (e *Engine) DocumentFrequency(term string) (int, bool) {
	df, ok := e.df[term]
	return df, ok
}

// PostingList reads the term's postings from every shard holding it. A shard
// that fails is skipped and logged; the call errors only when every shard
// failed.
func (e *Engine) PostingList(ctx context.Context, term string) (index.PostingList, error) {
	locs := e.directory[term]
	if len(locs) == 0 {
		return nil, nil
	}
	if len(locs) == 1 {
		return locs[0].reader.ReadPostings(locs[0].entry)
	}

	var all index.PostingList
	var errs []error
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := loc.reader.ReadPostings(loc.entry)
		if err != nil {
			e.logger.Warn("shard posting read failed",
				"term", term,
				"segment", loc.reader.Path(),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		all = append(all, postings...)
	}
	if len(errs) == len(locs) {
		return nil, fmt.Errorf("%w: term %q: %w", apperrors.ErrStoreRead, term, errors.Join(errs...))
	}
	return deduplicatePostings(all), nil
}

// Terms returns the vocabulary size.
func (e *Engine) Terms() int {
	return len(e.df)
}

// Segments returns the number of shard files loaded.
func (e *Engine) Segments() int {
	return len(e.readers)
}

// DocCount sums the per-shard document counts. A document present in
// several shards is counted once per shard.
func (e *Engine) DocCount() int64 {
	return e.docCount
}

func (e *Engine) Close() error {
	var firstErr error
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.readers = nil
	return firstErr
}

// deduplicatePostings keeps one posting per document, the one with the
// highest frequency.
func deduplicatePostings(postings index.PostingList) index.PostingList {
	if len(postings) <= 1 {
		return postings
	}
	seen := make(map[index.DocID]int, len(postings))
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		if idx, exists := seen[p.DocID]; exists {
			if p.TF > result[idx].TF {
				result[idx] = p
			}
		} else {
			seen[p.DocID] = len(result)
			result = append(result, p)
		}
	}
	return result
}
