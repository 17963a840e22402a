package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
)

func TestHousekeeperSweepsAndJournalsMetrics(t *testing.T) {
	engines := newTestEngines(noComponents)
	ingest := NewIngest(engines, newFakeMetrics())
	journal := &fakeJournal{}
	m := newFakeMetrics()
	h := NewHousekeeper(engines, journal, m, time.Minute, nil)
	ctx := context.Background()

	_, err := engines.Process(ctx, trendBar("ES", nyOpen))
	require.NoError(t, err)
	res, err := ingest.Signal(models.SignalRequest{Symbol: "ES", Component: "fks_ai", Direction: "long", Confidence: 0.8, Quality: 0.6})
	require.NoError(t, err)
	assert.Equal(t, models.StateRegistered, res.State)
	assert.Nil(t, res.Composite)

	// bar time drives the engine clock, so twenty minutes later the signal is stale
	_, err = engines.Process(ctx, trendBar("ES", nyOpen.Add(20*time.Minute)))
	require.NoError(t, err)

	var swept []time.Time
	h.AddTask(func(now time.Time) { swept = append(swept, now) })
	h.RunOnce(ctx)

	e, _ := engines.Lookup("ES")
	assert.Equal(t, models.StateStale, e.Coordinator().State(models.ComponentAI))
	require.Len(t, journal.metrics["ES"], 1)
	assert.Equal(t, 1.0, m.multipliers["ES/fks_ai"])
	assert.Len(t, swept, 1)
	assert.Equal(t, 1, m.latency["housekeeping"])
}

func TestHousekeeperJournalFailureIsCounted(t *testing.T) {
	engines := newTestEngines(longVoters)
	m := newFakeMetrics()
	h := NewHousekeeper(engines, &fakeJournal{fail: true}, m, 0, nil)
	_, err := engines.Process(context.Background(), trendBar("ES", nyOpen))
	require.NoError(t, err)

	h.RunOnce(context.Background())
	assert.Equal(t, 1, m.errorCount("journal_metrics"))
}

func TestHousekeeperStartStop(t *testing.T) {
	engines := newTestEngines(noComponents)
	h := NewHousekeeper(engines, nil, newFakeMetrics(), 5*time.Millisecond, nil)
	ran := make(chan struct{}, 1)
	h.AddTask(func(time.Time) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	h.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("housekeeping did not run")
	}
	h.Stop()
	h.Stop()
}

func TestIngestOutcomeAdjustsTrust(t *testing.T) {
	engines := newTestEngines(longVoters)
	ingest := NewIngest(engines, newFakeMetrics())
	out, err := engines.Process(context.Background(), trendBar("ES", nyOpen))
	require.NoError(t, err)
	require.NotNil(t, out.Composite)

	err = ingest.Outcome(models.OutcomeRequest{Symbol: "ES", CompositeID: out.Composite.ID, Actual: "short"})
	require.NoError(t, err)
	e, _ := engines.Lookup("ES")
	for _, m := range e.Metrics() {
		assert.EqualValues(t, 1, m.Evaluated)
		assert.Less(t, m.PerformanceMultiplier, 1.0)
	}

	err = ingest.Outcome(models.OutcomeRequest{Symbol: "ES", CompositeID: "missing", Actual: "long"})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	err = ingest.Outcome(models.OutcomeRequest{Symbol: "NQ", CompositeID: out.Composite.ID, Actual: "long"})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestIngestRejectsBadSignals(t *testing.T) {
	m := newFakeMetrics()
	ingest := NewIngest(newTestEngines(noComponents), m)

	_, err := ingest.Signal(models.SignalRequest{Symbol: "ES", Component: "nope", Direction: "long", Confidence: 0.9})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.Equal(t, 1, m.errorCount("ingest_signal"))

	_, err = ingest.Signal(models.SignalRequest{Symbol: "ES", Component: "fks_vwap", Direction: "long", Confidence: 0.2})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestKafkaHandlersClassifyErrors(t *testing.T) {
	engines := newTestEngines(noComponents)
	m := newFakeMetrics()
	ingest := NewIngest(engines, m)
	proc := NewBarProcessor(engines, nil, nil, nil, m, nil)

	bars := NewKafkaBarsHandler("fks.bars", proc, m)
	err := bars.Handle(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.False(t, Retryable(err))

	payload, _ := json.Marshal(map[string]interface{}{
		"symbol": "ES", "time": nyOpen, "close": 100, "atr": 1.5, "adx": 30, "volume": 10,
	})
	require.NoError(t, bars.Handle(context.Background(), payload))

	signals := NewKafkaSignalsHandler("fks.component-signals", ingest, m)
	payload, _ = json.Marshal(models.SignalRequest{Symbol: "ES", Component: "fks_ai", Direction: "buy", Confidence: 0.9})
	require.NoError(t, signals.Handle(context.Background(), payload))

	outcomes := NewKafkaOutcomesHandler("fks.outcomes", ingest, m)
	payload, _ = json.Marshal(models.OutcomeRequest{Symbol: "ES", CompositeID: "x", Actual: "long"})
	err = outcomes.Handle(context.Background(), payload)
	require.Error(t, err)
	assert.False(t, Retryable(err))

	assert.True(t, Retryable(errors.New("broker timeout")))
}

func TestIngestSignalCompletesComposite(t *testing.T) {
	engines := newTestEngines(noComponents)
	m := newFakeMetrics()
	ingest := NewIngest(engines, m)

	res, err := ingest.Signal(models.SignalRequest{Symbol: "ES", Component: "fks_ai", Direction: "long", Confidence: 0.8, Quality: 0.7})
	require.NoError(t, err)
	assert.Nil(t, res.Composite)

	res, err = ingest.Signal(models.SignalRequest{Symbol: "ES", Component: "fks_vwap", Direction: "buy", Confidence: 0.8, Quality: 0.7})
	require.NoError(t, err)
	require.NotNil(t, res.Composite)
	assert.Equal(t, models.DirectionLong, res.Composite.Direction)
	assert.Equal(t, 1, m.composites)

	e, _ := engines.Lookup("ES")
	_, ok := e.Composite(res.Composite.ID)
	assert.True(t, ok)
}

func TestOutcomeAppliedOnce(t *testing.T) {
	engines := newTestEngines(longVoters)
	m := newFakeMetrics()
	ingest := NewIngest(engines, m)
	out, err := engines.Process(context.Background(), trendBar("ES", nyOpen))
	require.NoError(t, err)
	require.NotNil(t, out.Composite)

	req := models.OutcomeRequest{Symbol: "ES", CompositeID: out.Composite.ID, Actual: "long", ProfitFactor: 2}
	require.NoError(t, ingest.Outcome(req))
	err = ingest.Outcome(req)
	assert.True(t, errors.Is(err, models.ErrOutcomeRecorded))
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.Equal(t, 1, m.errorCount("outcome_duplicate"))

	// a redelivered message is acknowledged
	outcomes := NewKafkaOutcomesHandler("fks.outcomes", ingest, m)
	payload, _ := json.Marshal(req)
	require.NoError(t, outcomes.Handle(context.Background(), payload))

	e, _ := engines.Lookup("ES")
	for _, cm := range e.Metrics() {
		assert.EqualValues(t, 1, cm.Evaluated, string(cm.Component))
	}
}

func TestIngestReset(t *testing.T) {
	engines := newTestEngines(noComponents)
	ingest := NewIngest(engines, newFakeMetrics())
	assert.True(t, errors.Is(ingest.Reset("ES"), models.ErrInsufficientData))

	_, err := engines.Process(context.Background(), trendBar("ES", nyOpen))
	require.NoError(t, err)
	require.NoError(t, ingest.Reset("ES"))
	e, _ := engines.Lookup("ES")
	_, ok := e.State()
	assert.False(t, ok)
	assert.Empty(t, e.Regimes(10))
}
