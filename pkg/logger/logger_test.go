package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches []LogBatch
	err     error
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, payload.(LogBatch))
	return nil
}

func (p *capturePublisher) all() []LogBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LogBatch(nil), p.batches...)
}

func TestFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("symbol", "ES"))

	l.Info("bar processed",
		Int("n", 3), Float64("score", 0.75), Bool("tradeable", true),
		Duration("took", 1500*time.Millisecond), Strings("components", []string{"fks_ai", "fks_vwap"}),
		Error(errors.New("boom")))

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "ES", m["symbol"])
	assert.Equal(t, float64(3), m["n"])
	assert.Equal(t, 0.75, m["score"])
	assert.Equal(t, true, m["tradeable"])
	assert.Equal(t, float64(1500), m["took"])
	assert.Equal(t, []interface{}{"fks_ai", "fks_vwap"}, m["components"])
	assert.Equal(t, "boom", m["error"])
}

func TestLevelFiltersPerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(&Config{Level: "debug", Output: "discard"})
	require.NoError(t, err)
	l.Debug("ok")
}

func TestCollectorFoldsRepeatsByGroup(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "fks.logs", Publisher: pub})
	child := l.With(String("env", "test"))

	for i := 0; i < 3; i++ {
		child.Error("journal write failed", String("symbol", "ES"), Error(errors.New("timeout")))
	}
	child.Error("journal write failed", String("symbol", "NQ"), Error(errors.New("refused")))
	child.Warn("ignored without CollectWarnings")

	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	entries := batches[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "ES", entries[0].Group["symbol"])
	assert.Equal(t, "timeout", entries[0].Sample["error"])
	assert.Equal(t, 1, entries[1].Count)
	assert.Contains(t, entries[0].Caller, "logger_test.go")
}

func TestCollectorReportsDroppedBatches(t *testing.T) {
	pub := &capturePublisher{err: errors.New("kafka down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Flush(context.Background())

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	c.AddLog("error", "c", nil, "x.go:3")
	c.Flush(context.Background())

	batches := pub.all()
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Dropped)
	assert.Len(t, batches[0].Entries, 1)
}
