// Package candidates narrows a query to the documents worth scoring, driven
// by the body index and bounded by a global and a per-term cap.
package candidates

import (
	"context"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
)

// Set is a set of document ids.
type Set struct {
	bm *roaring.Bitmap
}

func NewSet() *Set {
	return &Set{bm: roaring.New()}
}

// SetOf builds a set from ids.
func SetOf(ids ...index.DocID) *Set {
	return &Set{bm: roaring.BitmapOf(ids...)}
}

func (s *Set) Contains(id index.DocID) bool {
	return s.bm.Contains(id)
}

func (s *Set) Len() int {
	return int(s.bm.GetCardinality())
}

func (s *Set) Empty() bool {
	return s.bm.IsEmpty()
}

// ToArray returns the ids in ascending order.
func (s *Set) ToArray() []index.DocID {
	return s.bm.ToArray()
}

// Limits bounds candidate generation. A non-positive value disables that cap.
type Limits struct {
	MaxCandidates      int
	MaxPostingsPerTerm int
	OnReadError        index.ReadErrorFunc
}

type termFreq struct {
	term string
	df   int
}

// Generate collects body-index documents for terms, rarest term first, until
// MaxCandidates ids are held. Out-of-vocabulary terms are skipped and a term
// whose postings cannot be read is treated the same way.
func Generate(ctx context.Context, store index.PostingStore, terms []string, limits Limits) *Set {
	set := NewSet()
	if len(terms) == 0 {
		return set
	}

	seen := make(map[string]struct{}, len(terms))
	ordered := make([]termFreq, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		df, ok := store.DocumentFrequency(index.FieldBody, term)
		if !ok {
			continue
		}
		ordered = append(ordered, termFreq{term: term, df: df})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].df != ordered[j].df {
			return ordered[i].df < ordered[j].df
		}
		return ordered[i].term < ordered[j].term
	})

	size := 0
	for _, tf := range ordered {
		if ctx.Err() != nil {
			break
		}
		postings, err := store.PostingList(ctx, index.FieldBody, tf.term)
		if err != nil {
			slog.Default().Warn("candidate posting read failed, treating term as absent",
				"component", "candidates",
				"term", tf.term,
				"error", err,
			)
			if limits.OnReadError != nil {
				limits.OnReadError(index.FieldBody, tf.term, err)
			}
			continue
		}
		if limits.MaxPostingsPerTerm > 0 && len(postings) > limits.MaxPostingsPerTerm {
			postings = postings[:limits.MaxPostingsPerTerm]
		}
		for _, p := range postings {
			if set.bm.CheckedAdd(p.DocID) {
				size++
				if limits.MaxCandidates > 0 && size >= limits.MaxCandidates {
					return set
				}
			}
		}
	}
	return set
}
