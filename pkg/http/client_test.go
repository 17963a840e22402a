package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndParseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "fks", r.Header.Get("X-Client"))
		assert.Equal(t, "ES", r.URL.Query().Get("symbol"))
		var in map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]float64{"doubled": in["v"] * 2})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithHeader("X-Client", "fks"))
	var out map[string]float64
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL,
		QueryParams: map[string][]string{"symbol": {"ES"}},
		Body:        map[string]float64{"v": 21},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out["doubled"])
}

func TestSendAndParseStatusError(t *testing.T) {
	code := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", code)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, code, se.Code)
	assert.Equal(t, "warming up", se.Body)
	assert.True(t, IsTemporary(err))

	code = http.StatusUnprocessableEntity
	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	assert.False(t, IsTemporary(err))
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(nil))
	assert.False(t, IsTemporary(context.Canceled))
	assert.True(t, IsTemporary(errors.New("connection reset")))
	assert.True(t, IsTemporary(&StatusError{Code: http.StatusTooManyRequests}))
}
