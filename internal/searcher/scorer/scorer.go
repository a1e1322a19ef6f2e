// Package scorer computes per-field document scores for a query: TF-IDF dot
// products over the body field and distinct-term match counts over title and
// anchor text.
package scorer

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/candidates"
)

// ScoreMap holds one field's scores. Documents never added score 0.
type ScoreMap map[index.DocID]float64

func (m ScoreMap) Get(id index.DocID) float64 {
	return m[id]
}

func (m ScoreMap) Add(id index.DocID, v float64) {
	m[id] += v
}

// Keys returns the scored ids in ascending order.
func (m ScoreMap) Keys() []index.DocID {
	keys := make([]index.DocID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// UnionKeys returns every id scored in any of maps, ascending.
func UnionKeys(maps ...ScoreMap) []index.DocID {
	if len(maps) == 1 {
		return maps[0].Keys()
	}
	union := make(ScoreMap)
	for _, m := range maps {
		for id := range m {
			union[id] = 0
		}
	}
	return union.Keys()
}

type Scorer struct {
	store       index.PostingStore
	corpusSize  int
	onReadError index.ReadErrorFunc
	logger      *slog.Logger
}

// New returns a scorer over store. corpusSize is the N of the idf formula.
func New(store index.PostingStore, corpusSize int, onReadError index.ReadErrorFunc) *Scorer {
	return &Scorer{
		store:       store,
		corpusSize:  corpusSize,
		onReadError: onReadError,
		logger:      slog.Default().With("component", "scorer"),
	}
}

// IDF returns log10((N+1)/(df+1)).
func IDF(corpusSize, df int) float64 {
	return math.Log10(float64(corpusSize+1) / float64(df+1))
}

// BodyTFIDF scores body postings of each query term by
// (1+log10 qtf)*idf * (1+log10 tf)*idf, summed over terms. There is no length
// normalization. Terms whose idf is not positive are skipped so that scores
// stay non-negative. A nil restrict scores every posting.
func (s *Scorer) BodyTFIDF(ctx context.Context, termCounts map[string]int, restrict *candidates.Set) ScoreMap {
	scores := make(ScoreMap)
	terms := make([]string, 0, len(termCounts))
	for term := range termCounts {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		if ctx.Err() != nil {
			break
		}
		qtf := termCounts[term]
		if qtf <= 0 {
			continue
		}
		df, ok := s.store.DocumentFrequency(index.FieldBody, term)
		if !ok {
			continue
		}
		idf := IDF(s.corpusSize, df)
		if idf <= 0 {
			continue
		}
		postings, ok := s.read(ctx, index.FieldBody, term)
		if !ok {
			continue
		}
		wq := (1 + math.Log10(float64(qtf))) * idf
		for _, p := range postings {
			if p.TF == 0 {
				continue
			}
			if restrict != nil && !restrict.Contains(p.DocID) {
				continue
			}
			wd := (1 + math.Log10(float64(p.TF))) * idf
			scores.Add(p.DocID, wq*wd)
		}
	}
	return scores
}

// BinaryMatch adds 1 per distinct query term found in a document's field,
// however often the term occurs there.
func (s *Scorer) BinaryMatch(ctx context.Context, field index.Field, terms []string, restrict *candidates.Set) ScoreMap {
	scores := make(ScoreMap)
	// lastTerm[doc] is the 1-based index of the last term that credited doc
	lastTerm := make(map[index.DocID]int)
	seenTerm := make(map[string]struct{}, len(terms))

	for i, term := range terms {
		if ctx.Err() != nil {
			break
		}
		if _, dup := seenTerm[term]; dup {
			continue
		}
		seenTerm[term] = struct{}{}
		if _, ok := s.store.DocumentFrequency(field, term); !ok {
			continue
		}
		postings, ok := s.read(ctx, field, term)
		if !ok {
			continue
		}
		for _, p := range postings {
			if restrict != nil && !restrict.Contains(p.DocID) {
				continue
			}
			if lastTerm[p.DocID] == i+1 {
				continue
			}
			lastTerm[p.DocID] = i + 1
			scores.Add(p.DocID, 1)
		}
	}
	return scores
}

func (s *Scorer) read(ctx context.Context, field index.Field, term string) (index.PostingList, bool) {
	postings, err := s.store.PostingList(ctx, field, term)
	if err != nil {
		s.logger.Warn("posting read failed, treating term as absent",
			"field", field,
			"term", term,
			"error", err,
		)
		if s.onReadError != nil {
			s.onReadError(field, term, err)
		}
		return nil, false
	}
	return postings, true
}
