package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openrealms/presenced/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size
	maxMessageSize = 4096

	// Outbound buffer per connection; full buffers drop frames rather than
	// block the whole dispatch path on one slow client
	sendBufferSize = 256
)

// RateLimitConfig bounds inbound frames per connection with a token bucket
type RateLimitConfig struct {
	FramesPerSecond rate.Limit
	Burst           int
}

// DefaultRateLimitConfig allows 50 frames per second with a burst of 100,
// comfortably above the cadence of a well-behaved client
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		FramesPerSecond: 50,
		Burst:           100,
	}
}

// Client is one live websocket connection bound to an authenticated subject
type Client struct {
	id        model.ConnectionID
	subjectID model.SubjectID
	conn      *websocket.Conn
	router    *Router
	hub       *Hub
	limiter   *rate.Limiter
	logger    *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded websocket connection
func NewClient(id model.ConnectionID, subjectID model.SubjectID, conn *websocket.Conn, router *Router, hub *Hub, limits RateLimitConfig, logger *slog.Logger) *Client {
	return &Client{
		id:        id,
		subjectID: subjectID,
		conn:      conn,
		router:    router,
		hub:       hub,
		limiter:   rate.NewLimiter(limits.FramesPerSecond, limits.Burst),
		logger: logger.With(
			slog.String("connection_id", string(id)),
			slog.String("subject_id", string(subjectID))),
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() model.ConnectionID {
	return c.id
}

// Send queues an event for delivery. Frames are dropped when the client's
// outbound buffer is full.
func (c *Client) Send(event model.EventName, payload any) {
	data, err := json.Marshal(envelope{Event: event, Data: mustRaw(payload)})
	if err != nil {
		c.logger.Error("marshal outbound event failed",
			slog.String("event", string(event)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn("outbound frame dropped - send buffer full",
			slog.String("event", string(event)))
	}
}

// Close tears the connection down; safe to call more than once
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run starts the write pump and blocks on the read loop until the
// connection ends, then performs disconnect cleanup.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)

	c.hub.Unregister(c.id)
	c.router.HandleDisconnect(c, c.subjectID)
	c.Close()
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("inbound frame dropped - rate limit exceeded")
			continue
		}

		c.router.HandleMessage(ctx, c, c.subjectID, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func mustRaw(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
