// Package analytics records what users search for. The searcher emits one
// event per query through a Collector; an Aggregator folds events into
// running totals, either in-process or from Kafka in cmd/analytics.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "error"
	EventIndexLoad  EventType = "index_load"
)

// SearchEvent describes one served query.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Mode       string    `json:"mode"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	Candidates int       `json:"candidates"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Status     int       `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// IndexLoadEvent is emitted once when the searcher publishes its snapshot.
type IndexLoadEvent struct {
	Type      EventType      `json:"type"`
	Terms     map[string]int `json:"terms"`
	LoadMs    int64          `json:"load_ms"`
	Timestamp time.Time      `json:"timestamp"`
}

// Tracker accepts events without blocking the caller.
type Tracker interface {
	Track(event any)
}

// Trackers forwards each event to every tracker in order.
type Trackers []Tracker

func (ts Trackers) Track(event any) {
	for _, t := range ts {
		if t != nil {
			t.Track(event)
		}
	}
}

// decodeEvent picks the concrete event type from the "type" field.
func decodeEvent(value []byte) (any, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	switch envelope.Type {
	case EventSearch, EventZeroResult, EventError:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventIndexLoad:
		var e IndexLoadEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding index load event: %w", err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown event type %q", envelope.Type)
}

// Handle is a kafka.MessageHandler feeding the aggregator. Undecodable
// messages are logged and skipped so they are still committed.
func (a *Aggregator) Handle(_ context.Context, _ []byte, value []byte) error {
	event, err := decodeEvent(value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	a.Track(event)
	return nil
}
