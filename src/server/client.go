package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"regatta-live/src/helpers"
	"regatta-live/src/models"
	"regatta-live/src/race"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	errClientClosed = errors.New("client closed")
	errSlowConsumer = errors.New("send buffer full")
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one websocket viewer. It implements interfaces.ISubscriber.
type Client struct {
	id      string
	hub     *APIServer
	conn    *websocket.Conn
	channel *race.Channel

	mu     sync.Mutex
	closed bool
	send   chan *models.MFleetEvent
}

// -----------------------------------------------------------------------------

func newClient(hub *APIServer, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan *models.MFleetEvent, buffer),
	}
}

// -----------------------------------------------------------------------------

// Send never blocks. A full buffer closes the client so the write pump hangs up
// and the race channel drops it.
func (c *Client) Send(event *models.MFleetEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return helpers.WrapTransport("viewer "+c.id, errClientClosed)
	}

	select {
	case c.send <- event:
		return nil
	default:
		c.closeLocked()
		return helpers.WrapTransport("viewer "+c.id, errSlowConsumer)
	}
}

// -----------------------------------------------------------------------------

// Close hangs up the viewer. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.channel.Unsubscribe(ctx, c); err != nil {
			c.hub.Logger.Debug("Unsubscribe viewer %s: %v", c.id, err)
		}
		cancel()

		c.Close()
		c.conn.Close()
		c.hub.Logger.Debug("Viewer %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Client closed or dropped as slow
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
