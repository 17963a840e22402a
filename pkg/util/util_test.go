package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)
	cases := []string{
		"2024-10-10T10:10:00Z",
		"2024-10-10T10:10",
		"2024-10-10 10:10",
		strconv.FormatInt(want.Unix(), 10),
		strconv.FormatInt(want.UnixMilli(), 10),
	}
	for _, s := range cases {
		got, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), "%s parsed as %v", s, got)
	}

	day, ok := ParseTime("2024-10-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), day)

	for _, s := range []string{"", "yesterday", "-5"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, def, ParseTimeDefault("garbage", def))
}

func TestTimeframeDuration(t *testing.T) {
	d, ok := TimeframeDuration("5m")
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	d, ok = TimeframeDuration("1d")
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)

	for _, tf := range []string{"", "m", "0m", "5x", "-1h"} {
		_, ok := TimeframeDuration(tf)
		assert.False(t, ok, tf)
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2025, 3, 4, 13, 33, 20, 0, time.UTC)
	to := time.Date(2025, 3, 4, 14, 7, 59, 0, time.UTC)

	f, e := AlignFromTo(from, to, "5m")
	assert.Equal(t, time.Date(2025, 3, 4, 13, 30, 0, 0, time.UTC), f)
	assert.Equal(t, time.Date(2025, 3, 4, 14, 5, 0, 0, time.UTC), e)

	f, _ = AlignFromTo(from, to, "weird")
	assert.Equal(t, time.Date(2025, 3, 4, 13, 33, 0, 0, time.UTC), f)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, 42, ParseIntDefault(" 42 ", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, []string{"ES", "NQ"}, SplitList(" ES, ,NQ,"))
	assert.Empty(t, SplitList(""))
}
