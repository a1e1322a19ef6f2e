package aggregator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

// Requires a reachable database; set WS_POSTGRES_HOST to enable.
func TestSnapshotRoundTrip(t *testing.T) {
	if os.Getenv("WS_POSTGRES_HOST") == "" {
		t.Skip("WS_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Postgres)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewStore(ctx, db)
	require.NoError(t, err)

	agg := analytics.NewAggregator()
	agg.Track(analytics.SearchEvent{Type: analytics.EventSearch, Mode: "fused", Query: "cat", Returned: 3})
	want := agg.Stats()
	require.NoError(t, store.SaveSnapshot(ctx, want))

	got, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.TotalSearches, got.TotalSearches)
	assert.Equal(t, want.TopQueries, got.TopQueries)
}
