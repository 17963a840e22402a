package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
	"FKSEngine/pkg/config"
)

func testInput(at time.Time) service.Input {
	return service.Input{
		Bar:   models.Bar{Symbol: "ES", Time: at, Close: 100, ATR: 1, VWAP: 99, EMA9: 99.5},
		State: models.MarketStateResult{Regime: models.RegimeTrending},
	}
}

func TestModelComponentSignal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/signal", r.URL.Path)
		var req modelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ES", req.Symbol)
		assert.Equal(t, "trending", req.Regime)
		_ = json.NewEncoder(w).Encode(modelResponse{Direction: "long", Confidence: 0.82, Quality: 0.7, Model: "lgbm"})
	}))
	defer srv.Close()

	m := NewModelComponent(config.Analytics{URL: srv.URL, Timeout: time.Second, PollInterval: time.Minute}, nil)
	assert.Equal(t, models.ComponentAI, m.ID())

	at := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	sig, ok := m.CurrentSignal(context.Background(), testInput(at))
	require.True(t, ok)
	assert.Equal(t, models.DirectionLong, sig.Direction)
	assert.Equal(t, 0.82, sig.Confidence)
	assert.Equal(t, "lgbm", sig.Source)

	// cached within the poll interval
	_, ok = m.CurrentSignal(context.Background(), testInput(at.Add(30*time.Second)))
	require.True(t, ok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	_, ok = m.CurrentSignal(context.Background(), testInput(at.Add(2*time.Minute)))
	require.True(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestModelComponentBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewModelComponent(config.Analytics{URL: srv.URL, Timeout: time.Second, PollInterval: time.Minute}, nil)
	at := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, ok := m.CurrentSignal(context.Background(), testInput(at))
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateOpen, m.base.State())
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestModelComponentRejectsUnknownDirection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(modelResponse{Direction: "sideways", Confidence: 0.9})
	}))
	defer srv.Close()

	m := NewModelComponent(config.Analytics{URL: srv.URL, Timeout: time.Second}, nil)
	_, ok := m.CurrentSignal(context.Background(), testInput(time.Now()))
	assert.False(t, ok)
}

func TestModelComponentDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad features", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewModelComponent(config.Analytics{URL: srv.URL, Timeout: time.Second}, nil)
	_, ok := m.CurrentSignal(context.Background(), testInput(time.Now()))
	assert.False(t, ok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
