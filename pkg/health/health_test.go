package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("a", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	c.Register("b", Optional(nil))
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("c", Gate(func() bool { return false }, nil))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3)
	assert.Equal(t, "loading", report.Components["c"].Message)
}

func TestOptional(t *testing.T) {
	assert.Equal(t, StatusUp, Optional(pinger{})(context.Background()).Status)
	h := Optional(pinger{err: errors.New("refused")})(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, "refused", h.Message)
}

func TestReadyHandlerFollowsGate(t *testing.T) {
	var ready atomic.Bool
	c := NewChecker()
	c.Register("index_snapshot", Gate(ready.Load, func() string { return "3 fields" }))
	c.Register("redis", Optional(nil))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "degraded is still ready")

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "3 fields", report.Components["index_snapshot"].Message)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
