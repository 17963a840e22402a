package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferOverwritesOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}
	assert.Equal(t, 3, b.Len())
	assert.True(t, b.Full())
	assert.Equal(t, []int{3, 4, 5}, b.Values())
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestBufferLastN(t *testing.T) {
	b := New[int](4)
	assert.Empty(t, b.LastN(2))

	b.Add(1)
	b.Add(2)
	b.Add(3)
	assert.Equal(t, []int{2, 3}, b.LastN(2))
	assert.Equal(t, []int{1, 2, 3}, b.LastN(10), "k is clipped to Len")
	assert.Empty(t, b.LastN(0))
	assert.Empty(t, b.LastN(-1))

	got := b.LastN(2)
	got[0] = 99
	assert.Equal(t, []int{2, 3}, b.LastN(2), "LastN must not alias internal storage")
}

func TestBufferZeroCapacity(t *testing.T) {
	b := New[string](0)
	assert.Equal(t, 1, b.Cap())
	b.Add("a")
	b.Add("b")
	assert.Equal(t, []string{"b"}, b.Values())
}

func TestBufferClear(t *testing.T) {
	b := New[int](2)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Last()
	assert.False(t, ok)
	b.Add(7)
	assert.Equal(t, []int{7}, b.Values())
}

func TestFloatsStats(t *testing.T) {
	f := NewFloats(5)
	assert.Zero(t, f.Mean())
	assert.Zero(t, f.StdDev())
	assert.Zero(t, f.MeanAbsDelta(10))

	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		f.Add(v)
	}
	// holds 4,5,5,7,9
	assert.InDelta(t, 6.0, f.Mean(), 1e-9)
	assert.InDelta(t, 1.7888543, f.StdDev(), 1e-6)
	assert.InDelta(t, 1.25, f.MeanAbsDelta(5), 1e-9)
	assert.InDelta(t, 2.0, f.MeanAbsDelta(2), 1e-9)
	assert.Equal(t, 9.0, f.LastValue())
}
