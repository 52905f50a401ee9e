package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// readTimeout bounds a single read on a websocket session. A feed silent for this long is
// treated as a transport failure and reconnected; shorter silences are the staleness monitor's job.
const readTimeout = 90 * time.Second

// Transport establishes sessions with a price source.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one transport session. ReadMessage blocks until the next message or a failure.
// Close must be safe to call concurrently with ReadMessage and more than once.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// WebsocketTransport streams prices from a websocket endpoint.
type WebsocketTransport struct {
	url       string
	symbols   []string
	subscribe bool
	dialer    *websocket.Dialer
}

// NewWebsocketTransport creates a transport for url. When subscribe is set, every new session
// sends {"type":"subscribe","symbols":[...]} before reading.
func NewWebsocketTransport(url string, symbols []string, subscribe bool) *WebsocketTransport {
	return &WebsocketTransport{
		url:       url,
		symbols:   symbols,
		subscribe: subscribe,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	if t.subscribe {
		if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbols: t.symbols}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("send subscribe: %w", err)
		}
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
