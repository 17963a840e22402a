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

func TestQueryStateFromEngineThenCache(t *testing.T) {
	engines := newTestEngines(noComponents)
	cache := &fakeStateCache{}
	q := NewQuery(engines, cache, nil, nil)
	ctx := context.Background()

	_, err := engines.Process(ctx, trendBar("ES", nyOpen))
	require.NoError(t, err)
	st, err := q.State(ctx, "ES")
	require.NoError(t, err)
	assert.Equal(t, "ES", st.Symbol)

	require.NoError(t, cache.SaveState(ctx, &models.MarketStateResult{Symbol: "GC", Regime: models.RegimeRanging}))
	st, err = q.State(ctx, "GC")
	require.NoError(t, err)
	assert.Equal(t, models.RegimeRanging, st.Regime)

	_, err = q.State(ctx, "CL")
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
	_, err = q.State(ctx, "")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestQueryCompositesFallBackToJournal(t *testing.T) {
	older := models.CompositeSignal{ID: "a", Symbol: "NQ", Timestamp: nyOpen}
	newer := models.CompositeSignal{ID: "b", Symbol: "NQ", Timestamp: nyOpen.Add(time.Minute)}
	journal := &fakeJournal{recent: []models.CompositeSignal{newer, older}}
	q := NewQuery(newTestEngines(noComponents), nil, journal, nil)

	cs, err := q.Composites(context.Background(), "NQ", 0)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "a", cs[0].ID)
	assert.Equal(t, "b", cs[1].ID)

	journal.fail = true
	_, err = q.Composites(context.Background(), "NQ", 5)
	assert.True(t, errors.Is(err, models.ErrInternal))
}

func TestQueryCompositesFromEngine(t *testing.T) {
	engines := newTestEngines(longVoters)
	q := NewQuery(engines, nil, &fakeJournal{fail: true}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := engines.Process(ctx, trendBar("ES", nyOpen.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	cs, err := q.Composites(ctx, "ES", 2)
	require.NoError(t, err)
	assert.Len(t, cs, 2)
}

func TestQueryHealthAndParameters(t *testing.T) {
	engines := newTestEngines(longVoters)
	q := NewQuery(engines, nil, nil, nil)

	_, err := q.Health("ES")
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = engines.Process(context.Background(), trendBar("ES", nyOpen))
	require.NoError(t, err)

	h, err := q.Health("ES")
	require.NoError(t, err)
	assert.Equal(t, "ES", h.Symbol)
	assert.Equal(t, 2, h.ActiveComponents)

	p, err := q.Parameters("ES")
	require.NoError(t, err)
	assert.Equal(t, models.RegimeTrending, p.Regime)

	assert.Len(t, q.HealthAll(), 1)
}

func TestQueryOverview(t *testing.T) {
	engines := newTestEngines(longVoters)
	cache := &fakeStateCache{}
	q := NewQuery(engines, cache, nil, nil)
	ctx := context.Background()

	_, err := engines.Process(ctx, trendBar("ES", nyOpen))
	require.NoError(t, err)
	ov, err := q.Overview(ctx, "ES", 10)
	require.NoError(t, err)
	assert.NotNil(t, ov.State)
	assert.NotNil(t, ov.Health)
	assert.NotNil(t, ov.Parameters)
	assert.Len(t, ov.Composites, 1)
	assert.Nil(t, ov.Errors)

	// cached state only: the engine parts are reported as errors
	require.NoError(t, cache.SaveState(ctx, &models.MarketStateResult{Symbol: "GC"}))
	ov, err = q.Overview(ctx, "GC", 10)
	require.NoError(t, err)
	assert.NotNil(t, ov.State)
	assert.Contains(t, ov.Errors, "health")
	assert.Contains(t, ov.Errors, "parameters")

	_, err = q.Overview(ctx, "CL", 10)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}
