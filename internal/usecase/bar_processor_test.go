package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
)

func TestProcessorFansOutToSinks(t *testing.T) {
	pub := &fakePublisher{}
	journal := &fakeJournal{}
	cache := &fakeStateCache{}
	m := newFakeMetrics()
	p := NewBarProcessor(newTestEngines(longVoters), pub, journal, cache, m, nil)

	b := trendBar("ES", nyOpen)
	out, err := p.ProcessBar(context.Background(), &b)
	require.NoError(t, err)
	require.NotNil(t, out.Composite)

	assert.Equal(t, 1, m.bars)
	assert.Equal(t, 1, m.composites)
	assert.Equal(t, 1, pub.composites)
	assert.Len(t, journal.regimes, 1)
	assert.Len(t, journal.composites, 1)
	st, err := cache.LoadState(context.Background(), "ES")
	require.NoError(t, err)
	assert.Equal(t, out.State.Regime, st.Regime)
}

func TestProcessorSinkFailureDoesNotFailBar(t *testing.T) {
	pub := &fakePublisher{err: errSinkDown}
	journal := &fakeJournal{fail: true}
	m := newFakeMetrics()
	p := NewBarProcessor(newTestEngines(longVoters), pub, journal, nil, m, nil)

	b := trendBar("ES", nyOpen)
	require.NoError(t, p.Process(context.Background(), &b))
	assert.Equal(t, 1, m.errorCount("publish_composite"))
	assert.Equal(t, 1, m.errorCount("journal_regime"))
	assert.Equal(t, 1, m.errorCount("journal_composite"))
}

func TestProcessorWithoutSinks(t *testing.T) {
	p := NewBarProcessor(newTestEngines(noComponents), nil, nil, nil, newFakeMetrics(), nil)
	b := trendBar("ES", nyOpen)
	require.NoError(t, p.Process(context.Background(), &b))
}

func TestProcessorRejectsNilAndBadBars(t *testing.T) {
	m := newFakeMetrics()
	p := NewBarProcessor(newTestEngines(noComponents), nil, nil, nil, m, nil)

	err := p.Process(context.Background(), nil)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	b := trendBar("", nyOpen)
	err = p.Process(context.Background(), &b)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.Equal(t, 1, m.errorCount("invalid_input"))
}

func TestProcessorBatchKeepsGoing(t *testing.T) {
	journal := &fakeJournal{}
	p := NewBarProcessor(newTestEngines(noComponents), nil, journal, nil, newFakeMetrics(), nil)

	good1 := trendBar("ES", nyOpen)
	bad := trendBar("", nyOpen)
	good2 := trendBar("ES", nyOpen.Add(time.Minute))
	err := p.ProcessBatch(context.Background(), []*models.Bar{&good1, &bad, &good2})
	require.Error(t, err)
	assert.Len(t, journal.regimes, 2)
}
