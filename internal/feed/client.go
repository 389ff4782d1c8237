package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"oiiacat/internal/protocol"

	"github.com/gorilla/websocket"
)

// DefaultRetryInterval is the wait between reconnection attempts
const DefaultRetryInterval = 5 * time.Second

// Client follows a feed server and reconnects when the connection drops
type Client struct {
	addr  string
	token string
	log   *slog.Logger

	// RetryInterval is the wait between reconnection attempts
	RetryInterval time.Duration

	// Callbacks, invoked on the client's read goroutine
	OnHello func(protocol.HelloPayload)
	OnPulse func(protocol.PulsePayload)
	OnState func(protocol.StatePayload)

	mu          sync.Mutex
	isConnected bool
}

// NewClient creates a client for the feed at addr (host:port)
func NewClient(addr, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		addr:          addr,
		token:         token,
		log:           logger.With("component", "feed-client", "addr", addr),
		RetryInterval: DefaultRetryInterval,
	}
}

// Run connects and processes messages until ctx is done
func (c *Client) Run(ctx context.Context) error {
	for {
		c.connect(ctx)

		// If connect returns, it means we disconnected. Wait a bit and retry.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryInterval):
			c.log.Debug("attempting reconnection")
		}
	}
}

// IsConnected returns true while a connection is open
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

func (c *Client) connect(ctx context.Context) {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		c.log.Warn("connection failed", "error", err)
		return
	}
	defer conn.Close()

	c.setConnected(true)
	defer c.setConnected(false)
	c.log.Info("connected to feed")

	readDone := make(chan struct{})
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		c.writePump(ctx, conn, readDone)
	}()

	c.readPump(conn)
	close(readDone)
	<-connDone
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("invalid message", "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump keeps the connection alive until the read side ends, and
// closes it when ctx is done
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			conn.Close()
			return
		}
	}
}

func (c *Client) handleMessage(msg protocol.Envelope) {
	switch msg.Type {
	case protocol.TypeHello:
		var payload protocol.HelloPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.log.Debug("invalid hello payload", "error", err)
			return
		}
		if c.OnHello != nil {
			c.OnHello(payload)
		}

	case protocol.TypePulse:
		var payload protocol.PulsePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.log.Debug("invalid pulse payload", "error", err)
			return
		}
		if c.OnPulse != nil {
			c.OnPulse(payload)
		}

	case protocol.TypeState:
		var payload protocol.StatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.log.Debug("invalid state payload", "error", err)
			return
		}
		if c.OnState != nil {
			c.OnState(payload)
		}
	}
}
