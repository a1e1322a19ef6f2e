// Package snapshot holds the immutable three-field index the query path reads
// from, the loader that builds it at startup, and the gate that publishes it.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// FieldStore is the read side of one field's index.
type FieldStore interface {
	DocumentFrequency(term string) (int, bool)
	PostingList(ctx context.Context, term string) (index.PostingList, error)
	Terms() int
	Close() error
}

// Snapshot maps each field to its store. It is never mutated after
// construction and is shared by all requests without locking.
type Snapshot struct {
	fields   map[index.Field]FieldStore
	loadedAt time.Time
}

var _ index.PostingStore = (*Snapshot)(nil)

// New builds a snapshot from per-field stores. Fields without a store behave
// as an empty vocabulary.
func New(fields map[index.Field]FieldStore) *Snapshot {
	copied := make(map[index.Field]FieldStore, len(fields))
	for f, s := range fields {
		copied[f] = s
	}
	return &Snapshot{fields: copied, loadedAt: time.Now()}
}

func (s *Snapshot) DocumentFrequency(field index.Field, term string) (int, bool) {
	store, ok := s.fields[field]
	if !ok {
		return 0, false
	}
	return store.DocumentFrequency(term)
}

func (s *Snapshot) PostingList(ctx context.Context, field index.Field, term string) (index.PostingList, error) {
	store, ok := s.fields[field]
	if !ok {
		return nil, nil
	}
	return store.PostingList(ctx, term)
}

// Terms returns the vocabulary size per field.
func (s *Snapshot) Terms() map[index.Field]int {
	out := make(map[index.Field]int, len(s.fields))
	for f, store := range s.fields {
		out[f] = store.Terms()
	}
	return out
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Close releases every field store, returning the first error.
func (s *Snapshot) Close() error {
	var firstErr error
	for f, store := range s.fields {
		if err := store.Close(); err != nil {
			slog.Default().Error("close failed", "component", "snapshot", "field", f, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Loader opens the field engines under a data directory.
type Loader struct {
	DataDir string
	Timeout time.Duration
	logger  *slog.Logger
}

func NewLoader(dataDir string, timeout time.Duration) *Loader {
	return &Loader{
		DataDir: dataDir,
		Timeout: timeout,
		logger:  slog.Default().With("component", "snapshot-loader"),
	}
}

// Load opens the three field engines in parallel. Any failure, including
// the timeout, closes whatever was opened and returns ErrIndexLoad.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	var loaded []*indexer.Engine

	err := resilience.WithTimeout(ctx, l.Timeout, "index load", func(ctx context.Context) error {
		engines := make([]*indexer.Engine, len(index.Fields))
		g, gctx := errgroup.WithContext(ctx)
		for i, field := range index.Fields {
			g.Go(func() error {
				e, err := indexer.Open(gctx, l.DataDir, field)
				if err != nil {
					return fmt.Errorf("field %s: %w", field, err)
				}
				engines[i] = e
				return nil
			})
		}
		err := g.Wait()
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			closeEngines(engines)
			return err
		}
		loaded = engines
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIndexLoad, err)
	}

	fields := make(map[index.Field]FieldStore, len(loaded))
	for i, e := range loaded {
		fields[index.Fields[i]] = e
		l.logger.Info("field loaded",
			"field", index.Fields[i],
			"segments", e.Segments(),
			"terms", e.Terms(),
		)
	}
	l.logger.Info("index snapshot loaded", "duration", time.Since(start).String())
	return New(fields), nil
}

func closeEngines(engines []*indexer.Engine) {
	for _, e := range engines {
		if e != nil {
			e.Close()
		}
	}
}
