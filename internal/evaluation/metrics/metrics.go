// Package metrics computes ranking quality at a cutoff K. Every function is
// total: empty relevant sets and non-positive K yield 0, never an error.
package metrics

// Relevant is the set of document ids judged relevant for one query.
type Relevant map[string]struct{}

// NewRelevant builds a set from ids.
func NewRelevant(ids ...string) Relevant {
	r := make(Relevant, len(ids))
	for _, id := range ids {
		r[id] = struct{}{}
	}
	return r
}

func (r Relevant) Contains(id string) bool {
	_, ok := r[id]
	return ok
}

// AveragePrecisionAtK sums hits/i over relevant positions in ranked[:k] and
// divides by min(|relevant|, k).
func AveragePrecisionAtK(relevant Relevant, ranked []string, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	hits := 0
	sum := 0.0
	for i, id := range head(ranked, k) {
		if relevant.Contains(id) {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(min(len(relevant), k))
}

// PrecisionAtK divides by k even when fewer than k results were ranked.
func PrecisionAtK(relevant Relevant, ranked []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countHits(relevant, ranked, k)) / float64(k)
}

func RecallAtK(relevant Relevant, ranked []string, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	return float64(countHits(relevant, ranked, k)) / float64(len(relevant))
}

// QueryScores are one query's metrics at K.
type QueryScores struct {
	AP        float64 `json:"ap"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// Score computes all per-query metrics at k.
func Score(relevant Relevant, ranked []string, k int) QueryScores {
	return QueryScores{
		AP:        AveragePrecisionAtK(relevant, ranked, k),
		Precision: PrecisionAtK(relevant, ranked, k),
		Recall:    RecallAtK(relevant, ranked, k),
	}
}

// Summary holds arithmetic means over evaluated queries.
type Summary struct {
	Queries       int     `json:"queries"`
	MAP           float64 `json:"map"`
	MeanPrecision float64 `json:"mean_precision"`
	MeanRecall    float64 `json:"mean_recall"`
}

// Aggregate averages per-query scores; no queries gives all zeros.
func Aggregate(scores []QueryScores) Summary {
	s := Summary{Queries: len(scores)}
	if len(scores) == 0 {
		return s
	}
	for _, q := range scores {
		s.MAP += q.AP
		s.MeanPrecision += q.Precision
		s.MeanRecall += q.Recall
	}
	n := float64(len(scores))
	s.MAP /= n
	s.MeanPrecision /= n
	s.MeanRecall /= n
	return s
}

func countHits(relevant Relevant, ranked []string, k int) int {
	n := 0
	for _, id := range head(ranked, k) {
		if relevant.Contains(id) {
			n++
		}
	}
	return n
}

func head(ranked []string, k int) []string {
	if k < 0 {
		k = 0
	}
	if len(ranked) > k {
		return ranked[:k]
	}
	return ranked
}
