package snapshot

import (
	"context"
	"errors"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

var ErrAlreadyPublished = errors.New("snapshot already published")

// Gate publishes a Snapshot exactly once. Readers that arrive before
// publication are rejected with ErrNotReady rather than blocked.
type Gate struct {
	mu    sync.RWMutex
	snap  *Snapshot
	ready chan struct{}
}

func NewGate() *Gate {
	return &Gate{ready: make(chan struct{})}
}

func (g *Gate) Publish(s *Snapshot) error {
	if s == nil {
		return errors.New("publishing nil snapshot")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snap != nil {
		return ErrAlreadyPublished
	}
	g.snap = s
	close(g.ready)
	return nil
}

func (g *Gate) Get() (*Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.snap == nil {
		return nil, apperrors.ErrNotReady
	}
	return g.snap, nil
}

// Wait blocks until a snapshot is published or ctx is done.
func (g *Gate) Wait(ctx context.Context) (*Snapshot, error) {
	select {
	case <-g.ready:
		return g.Get()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gate) Ready() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

// Store returns the published snapshot as a PostingStore.
func (g *Gate) Store() (index.PostingStore, error) {
	s, err := g.Get()
	if err != nil {
		return nil, err
	}
	return s, nil
}
