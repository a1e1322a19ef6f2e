package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
)

// Publisher is the write side of a message broker.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events and publishes them in batches, flushing when a
// batch fills or the flush interval elapses. Track never blocks: events
// are dropped when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	published     atomic.Int64
	cancel        context.CancelFunc
	done          chan struct{}
	logger        *slog.Logger
}

func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the publish loop. It runs until ctx is cancelled or Close
// is called, then flushes what is buffered.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafka(event))
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			batch = c.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafka(event))
		default:
			return batch
		}
	}
}

// flush publishes batch and returns an empty batch to reuse. A failed
// batch is dropped.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.dropped.Add(int64(len(batch)))
		c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
	} else {
		c.published.Add(int64(len(batch)))
	}
	return batch[:0]
}

func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops the loop and waits for the final flush.
func (c *Collector) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Collector) Dropped() int64   { return c.dropped.Load() }
func (c *Collector) Published() int64 { return c.published.Load() }

// toKafka keys search events by mode so one mode's events stay ordered
// within a partition.
func toKafka(event any) kafka.Event {
	key := "analytics"
	switch e := event.(type) {
	case SearchEvent:
		key = e.Mode
	case IndexLoadEvent:
		key = string(e.Type)
	}
	return kafka.Event{Key: key, Value: event}
}
