package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/magefree/mage-duel-server/internal/config"
	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/magefree/mage-duel-server/internal/service"
	"go.uber.org/zap"
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

// Client is one websocket connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	cfg    config.WebSocketConfig
	logger *zap.Logger

	send chan []byte

	mu     sync.RWMutex
	closed bool
	cc     service.ConnectionContext
}

func newClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *Client {
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(zap.String("conn_id", id)),
		send:   make(chan []byte, cfg.SendBuffer),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Context returns who the connection acts as and where it is attached.
func (c *Client) Context() service.ConnectionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cc
}

func (c *Client) setIdentity(id game.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cc.Identity = id
}

func (c *Client) sessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cc.SessionID
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cc.SessionID = id
}

// enqueue hands a frame to the write pump. A client whose buffer is full is
// disconnected.
func (c *Client) enqueue(data []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errClientClosed
	}
	select {
	case c.send <- data:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.shutdown()
		return errSlowClient
	}
}

func (c *Client) emit(event string, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// shutdown closes the send channel; the write pump then closes the socket.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump decodes frames and hands them to handle until the connection
// fails. Commands from one client are handled one at a time.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, ClientMessage)) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.extendReadDeadline()

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("malformed frame", zap.Error(err))
			_ = c.emit(EventError, ErrorPayload{Code: CodeInvalidArgument, Message: errMalformed.Error()})
			continue
		}
		handle(ctx, c, msg)
	}
}

func (c *Client) extendReadDeadline() {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.extendWriteDeadline()
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.extendWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) extendWriteDeadline() {
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
}
