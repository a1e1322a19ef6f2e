// Package signals serves per-document popularity signals. No signal data is
// shipped with the index, so the default source answers neutral values.
package signals

import "context"

// Source returns one value per requested id, in request order.
type Source interface {
	PageRank(ctx context.Context, ids []string) ([]float64, error)
	PageViews(ctx context.Context, ids []string) ([]int64, error)
}

// Neutral answers 0 for every id.
type Neutral struct{}

func (Neutral) PageRank(_ context.Context, ids []string) ([]float64, error) {
	return make([]float64, len(ids)), nil
}

func (Neutral) PageViews(_ context.Context, ids []string) ([]int64, error) {
	return make([]int64, len(ids)), nil
}

// Table serves signals from in-memory maps; unknown ids get 0.
type Table struct {
	Ranks map[string]float64
	Views map[string]int64
}

func (t Table) PageRank(_ context.Context, ids []string) ([]float64, error) {
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = t.Ranks[id]
	}
	return out, nil
}

func (t Table) PageViews(_ context.Context, ids []string) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = t.Views[id]
	}
	return out, nil
}
