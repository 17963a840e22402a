package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barLines(t *testing.T, n int) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		b, err := json.Marshal(trendBar("ES", nyOpen.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestReplayProcessesBarsInOrder(t *testing.T) {
	proc := NewBarProcessor(newTestEngines(longVoters), nil, nil, nil, newFakeMetrics(), nil)
	input := barLines(t, 4) + "{broken\n\n"

	var seen []Output
	st, err := Replay(context.Background(), strings.NewReader(input), proc, ReplayOptions{}, func(o Output) {
		seen = append(seen, o)
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, st.Bars)
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 4, st.Composites)
	require.Len(t, seen, 4)
	assert.True(t, seen[0].State.Timestamp.Before(seen[3].State.Timestamp))
}

func TestReplayWindow(t *testing.T) {
	proc := NewBarProcessor(newTestEngines(noComponents), nil, nil, nil, newFakeMetrics(), nil)
	opts := ReplayOptions{From: nyOpen.Add(time.Minute), To: nyOpen.Add(3 * time.Minute)}

	st, err := Replay(context.Background(), strings.NewReader(barLines(t, 5)), proc, opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Bars)
	assert.Equal(t, 3, st.Skipped)
}

func TestReplayStopsOnCancel(t *testing.T) {
	proc := NewBarProcessor(newTestEngines(noComponents), nil, nil, nil, newFakeMetrics(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Replay(ctx, strings.NewReader(barLines(t, 3)), proc, ReplayOptions{}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
