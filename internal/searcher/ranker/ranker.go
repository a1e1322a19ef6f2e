package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/scorer"
)

type ScoredDoc struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// Weights scales each field's score before fusion.
type Weights struct {
	Body   float64 `yaml:"body" json:"body"`
	Title  float64 `yaml:"title" json:"title"`
	Anchor float64 `yaml:"anchor" json:"anchor"`
}

func DefaultWeights() Weights {
	return Weights{Body: 1.0, Title: 2.0, Anchor: 1.5}
}

type Inputs struct {
	Body   scorer.ScoreMap
	Title  scorer.ScoreMap
	Anchor scorer.ScoreMap
	// CandidateIDs are the documents to rank. When nil, every document
	// scored in any field is ranked.
	CandidateIDs []index.DocID
	Weights      Weights
	// ResultCap bounds the output; zero or less returns every positive doc.
	ResultCap int
}

// Rank fuses the field scores of each candidate, drops documents whose fused
// score is not positive, and returns the best ResultCap ordered by score
// descending then doc id ascending.
func Rank(in Inputs) []ScoredDoc {
	ids := in.CandidateIDs
	if ids == nil {
		ids = scorer.UnionKeys(in.Body, in.Title, in.Anchor)
	}

	if in.ResultCap <= 0 {
		result := make([]ScoredDoc, 0, len(ids))
		for _, id := range ids {
			if s := fuse(in, id); s > 0 {
				result = append(result, ScoredDoc{DocID: id, Score: s})
			}
		}
		sort.Slice(result, func(i, j int) bool { return before(result[i], result[j]) })
		return result
	}

	top := newTopK(in.ResultCap)
	for _, id := range ids {
		if s := fuse(in, id); s > 0 {
			top.Offer(ScoredDoc{DocID: id, Score: s})
		}
	}
	return top.Sorted()
}

func fuse(in Inputs, id index.DocID) float64 {
	var s float64
	if in.Weights.Body != 0 {
		s += in.Weights.Body * in.Body.Get(id)
	}
	if in.Weights.Title != 0 {
		s += in.Weights.Title * in.Title.Get(id)
	}
	if in.Weights.Anchor != 0 {
		s += in.Weights.Anchor * in.Anchor.Get(id)
	}
	return s
}

// before reports whether a ranks ahead of b.
func before(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
