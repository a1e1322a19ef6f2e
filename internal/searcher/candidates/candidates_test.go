package candidates

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
)

type failingStore struct {
	index.MemoryStore
	fail  map[string]bool
	reads []string
}

func (s *failingStore) PostingList(ctx context.Context, field index.Field, term string) (index.PostingList, error) {
	s.reads = append(s.reads, term)
	if s.fail[term] {
		return nil, errors.New("disk on fire")
	}
	return s.MemoryStore.PostingList(ctx, field, term)
}

func newStore() *failingStore {
	mem := index.NewMemoryStore()
	body := mem[index.FieldBody]
	// rare: df 1, mid: df 2, common: df 4
	body.AddTerms(1, []string{"rare", "common", "mid"})
	body.AddTerms(2, []string{"common", "mid"})
	body.AddTerms(3, []string{"common"})
	body.AddTerms(4, []string{"common"})
	return &failingStore{MemoryStore: mem, fail: map[string]bool{}}
}

func TestGenerateEmpty(t *testing.T) {
	s := newStore()
	set := Generate(context.Background(), s, nil, Limits{MaxCandidates: 10})
	assert.True(t, set.Empty())
	assert.Empty(t, s.reads)
}

func TestGenerateUnionWhenUncapped(t *testing.T) {
	set := Generate(context.Background(), newStore(), []string{"common", "rare", "mid"}, Limits{})
	assert.Equal(t, []index.DocID{1, 2, 3, 4}, set.ToArray())
}

func TestGenerateRarestFirstAndDedup(t *testing.T) {
	s := newStore()
	Generate(context.Background(), s, []string{"common", "mid", "rare", "common"}, Limits{})
	assert.Equal(t, []string{"rare", "mid", "common"}, s.reads)
}

func TestGenerateGlobalCapStopsImmediately(t *testing.T) {
	s := newStore()
	set := Generate(context.Background(), s, []string{"common", "mid", "rare"}, Limits{MaxCandidates: 2})
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []index.DocID{1, 2}, set.ToArray())
	assert.Equal(t, []string{"rare", "mid"}, s.reads)
}

func TestGenerateNeverExceedsCap(t *testing.T) {
	for limit := 1; limit <= 5; limit++ {
		set := Generate(context.Background(), newStore(), []string{"common", "mid", "rare"}, Limits{MaxCandidates: limit})
		assert.LessOrEqual(t, set.Len(), limit)
	}
}

func TestGeneratePerTermCap(t *testing.T) {
	set := Generate(context.Background(), newStore(), []string{"common"}, Limits{MaxPostingsPerTerm: 2})
	assert.Equal(t, 2, set.Len())
}

func TestGenerateOutOfVocabulary(t *testing.T) {
	s := newStore()
	set := Generate(context.Background(), s, []string{"zebra", "unicorn"}, Limits{MaxCandidates: 10})
	assert.True(t, set.Empty())
	assert.Empty(t, s.reads)
}

func TestGenerateStoreFailureTreatedAsAbsent(t *testing.T) {
	s := newStore()
	s.fail["rare"] = true

	var reported []string
	set := Generate(context.Background(), s, []string{"rare", "mid"}, Limits{
		OnReadError: func(field index.Field, term string, err error) {
			assert.Equal(t, index.FieldBody, field)
			require.Error(t, err)
			reported = append(reported, term)
		},
	})
	assert.Equal(t, []index.DocID{1, 2}, set.ToArray())
	assert.Equal(t, []string{"rare"}, reported)
}

func TestSetOf(t *testing.T) {
	s := SetOf(5, 3, 5)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(4))
	assert.Equal(t, []index.DocID{3, 5}, s.ToArray())
}
