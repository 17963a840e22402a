package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bridge struct {
	mu         sync.Mutex
	tokens     []string
	subscribed []string
	conns      int
}

func (b *bridge) handler(t *testing.T) http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		b.mu.Lock()
		b.tokens = append(b.tokens, r.URL.Query().Get("token"))
		b.conns++
		n := b.conns
		b.mu.Unlock()

		var sub subscribeMsg
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		b.mu.Lock()
		b.subscribed = append(b.subscribed, sub.Symbol)
		b.mu.Unlock()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		px := 100.0 + float64(n)
		_ = conn.WriteJSON(map[string]interface{}{
			"type": "bar",
			"data": []map[string]interface{}{
				{"symbol": sub.Symbol, "time": "2025-03-04T14:30:00Z", "close": px, "volume": 10, "adx": 30},
			},
		})
		if n == 1 {
			// first connection drops right after its bar
			return
		}
		_, _, _ = conn.ReadMessage()
	}
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestClientStreamsBarsAndReconnects(t *testing.T) {
	br := &bridge{}
	srv := httptest.NewServer(br.handler(t))
	defer srv.Close()

	c := New(wsURL(srv), "secret", []string{"NQ"}, 10*time.Millisecond, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())
	bars, errs := c.Read(ctx)

	select {
	case b := <-bars:
		require.NotNil(t, b)
		assert.Equal(t, "NQ", b.Symbol)
		assert.Equal(t, 101.0, b.Close)
		assert.Equal(t, 30.0, b.ADX)
		assert.Equal(t, time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC), b.Time.UTC())
	case <-ctx.Done():
		t.Fatal("no bar received")
	}

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("no error after the bridge dropped")
	}
	assert.False(t, c.IsConnected())

	require.NoError(t, c.Reconnect(ctx))
	select {
	case b := <-bars:
		assert.Equal(t, 102.0, b.Close)
	case <-ctx.Done():
		t.Fatal("no bar after reconnect")
	}

	br.mu.Lock()
	assert.Equal(t, []string{"secret", "secret"}, br.tokens)
	assert.Equal(t, []string{"NQ", "NQ"}, br.subscribed)
	br.mu.Unlock()

	cancel()
	for range bars {
	}
}

func TestClientSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1", "", []string{"ES"}, time.Millisecond, 0, nil)
	assert.Error(t, c.Subscribe(context.Background()))
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}

func TestClientConnectFails(t *testing.T) {
	c := New("ws://127.0.0.1:1", "", nil, time.Millisecond, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}
