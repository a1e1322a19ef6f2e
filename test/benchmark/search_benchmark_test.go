package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/candidates"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/scorer"
)

func syntheticStore(docs int) index.MemoryStore {
	store := index.NewMemoryStore()
	for i := 0; i < docs; i++ {
		id := index.DocID(i + 1)
		terms := termsFor(i)
		store[index.FieldBody].AddTerms(id, terms)
		store[index.FieldTitle].AddTerms(id, terms[:2])
		if i%3 == 0 {
			store[index.FieldAnchor].AddTerms(id, terms[1:3])
		}
	}
	return store
}

func BenchmarkCandidateGeneration(b *testing.B) {
	store := syntheticStore(50000)
	terms := []string{"harbor", "galaxy", "rare7", "unknownterm"}
	for _, limit := range []int{1000, 10000, 0} {
		b.Run(fmt.Sprintf("cap_%d", limit), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = candidates.Generate(context.Background(), store, terms, candidates.Limits{MaxCandidates: limit})
			}
		})
	}
}

func BenchmarkBodyTFIDF(b *testing.B) {
	store := syntheticStore(50000)
	sc := scorer.New(store, 50000, nil)
	plan := parser.Parse("harbor science river")
	restrict := candidates.Generate(context.Background(), store, plan.Distinct, candidates.Limits{MaxCandidates: 5000})

	b.Run("restricted", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = sc.BodyTFIDF(context.Background(), plan.TermCounts, restrict)
		}
	})
	b.Run("unrestricted", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = sc.BodyTFIDF(context.Background(), plan.TermCounts, nil)
		}
	})
}

// BenchmarkRank measures fusion and heap selection for growing candidate
// sets at the production result cap.
func BenchmarkRank(b *testing.B) {
	for _, n := range []int{1000, 10000, 100000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			body, title, anchor := make(scorer.ScoreMap, n), make(scorer.ScoreMap, n), make(scorer.ScoreMap, n/3)
			ids := make([]index.DocID, n)
			for i := 0; i < n; i++ {
				id := index.DocID(i + 1)
				ids[i] = id
				body[id] = float64((i*7919)%1000) / 100
				if i%2 == 0 {
					title[id] = float64(i % 3)
				}
				if i%3 == 0 {
					anchor[id] = 1
				}
			}
			in := ranker.Inputs{
				Body:         body,
				Title:        title,
				Anchor:       anchor,
				CandidateIDs: ids,
				Weights:      ranker.DefaultWeights(),
				ResultCap:    100,
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = ranker.Rank(in)
			}
		})
	}
}

func BenchmarkExecute(b *testing.B) {
	store := syntheticStore(50000)
	exec := executor.New(executor.Static(store), executor.Config{
		Weights:            ranker.DefaultWeights(),
		CorpusSize:         50000,
		MaxCandidates:      10000,
		MaxPostingsPerTerm: 5000,
		ResultCap:          100,
	}, nil)
	plan := parser.Parse("harbor of the galaxy empire")

	for _, mode := range executor.Modes {
		b.Run(string(mode), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Execute(context.Background(), mode, plan); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExecuteParallel(b *testing.B) {
	store := syntheticStore(50000)
	exec := executor.New(executor.Static(store), executor.Config{
		Weights:       ranker.DefaultWeights(),
		CorpusSize:    50000,
		MaxCandidates: 10000,
		ResultCap:     100,
	}, nil)
	plans := []*parser.QueryPlan{
		parser.Parse("harbor science"),
		parser.Parse("river city"),
		parser.Parse("galaxy rare11"),
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := exec.Execute(context.Background(), executor.ModeFused, plans[i%len(plans)]); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
