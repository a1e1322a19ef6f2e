package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeutralSameLength(t *testing.T) {
	ids := []string{"1", "2", "3"}
	ranks, err := Neutral{}.PageRank(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, ranks)

	views, err := Neutral{}.PageViews(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0}, views)

	empty, err := Neutral{}.PageRank(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTable(t *testing.T) {
	src := Table{Ranks: map[string]float64{"5": 1.5}, Views: map[string]int64{"5": 40}}
	ranks, _ := src.PageRank(context.Background(), []string{"4", "5"})
	assert.Equal(t, []float64{0, 1.5}, ranks)
	views, _ := src.PageViews(context.Background(), []string{"5", "4"})
	assert.Equal(t, []int64{40, 0}, views)
}
