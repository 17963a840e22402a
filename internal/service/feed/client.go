package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FKSEngine/internal/domain/models"
	drepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/logger"
)

// Client is a BarStream over the host bridge's WebSocket.
// The bridge pushes {"type":"bar","data":[...]} frames for the subscribed symbols.
type Client struct {
	url            string
	token          string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	ready     chan struct{} // closed while a connection is up

	wmu sync.Mutex // gorilla allows one concurrent writer
}

// New creates a bridge client for symbols.
func New(rawURL, token string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Client{
		url:            rawURL,
		token:          token,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		dialer:         websocket.DefaultDialer,
		log:            log.With(logger.String("component", "bar_feed")),
		ready:          make(chan struct{}),
	}
}

type frame struct {
	Type    string       `json:"type"`
	Data    []models.Bar `json:"data"`
	Message string       `json:"msg"`
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Connect dials the bridge, passing the token as a query parameter.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.connected = true
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()
	c.log.Info("connected", logger.String("host", u.Host))
	return nil
}

// Subscribe asks the bridge for every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	conn, _ := c.current()
	if conn == nil {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.symbols {
		if err := c.write(conn, subscribeMsg{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Debug("subscribed", logger.String("symbol", s))
	}
	return nil
}

// Read streams bars until ctx ends. A read failure is reported on the error channel
// and the loop waits for the next Connect, so the channels survive reconnects.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 1024)
	errs := make(chan error, 1)

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	if c.pingInterval > 0 {
		go c.pingLoop(ctx)
	}

	go func() {
		defer close(bars)
		defer close(errs)
		for {
			conn, wait := c.current()
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
					continue
				}
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !c.markDown(conn) {
					// closed on purpose by Close or Reconnect
					continue
				}
				select {
				case errs <- fmt.Errorf("feed read: %w", err):
				default:
				}
				continue
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				c.log.Debug("ignoring undecodable frame", logger.Error(err))
				continue
			}
			switch f.Type {
			case "bar":
				for i := range f.Data {
					bar := f.Data[i]
					select {
					case bars <- &bar:
					case <-ctx.Done():
						return
					}
				}
			case "error":
				c.log.Warn("bridge error", logger.String("msg", f.Message))
			}
		}
	}()
	return bars, errs
}

// Reconnect waits the reconnect delay, then connects and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() (*websocket.Conn, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, c.ready
	}
	return c.conn, c.ready
}

// markDown drops conn if it is still the live connection and reports whether it was.
func (c *Client) markDown(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || !c.connected {
		return false
	}
	c.resetLocked()
	return true
}

func (c *Client) resetLocked() {
	c.connected = false
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) pingLoop(ctx context.Context) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			conn, _ := c.current()
			if conn == nil {
				continue
			}
			c.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingInterval/2))
			c.wmu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", logger.Error(err))
			}
		}
	}
}

var _ drepo.BarStream = (*Client)(nil)
