package hub

import (
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait
	maxMessageSize = 4 * 1024
)

// Conn is the subset of a websocket connection a client needs. Both
// gofiber/websocket and gorilla/websocket connections satisfy it.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Websocket frame types (RFC 6455).
const (
	textMessage  = 1
	closeMessage = 8
	pingMessage  = 9
)

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn Conn
	send chan []byte
}

// NewClient registers a client with the hub. It blocks until the hub loop
// accepts it, so Run must be active.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	select {
	case hub.register <- c:
	case <-hub.done:
		close(c.send)
	}
	return c
}

// Run pumps messages until the connection closes. Call it from the
// websocket handler; it blocks.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump detects disconnection and handles pongs. Client messages are ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(closeMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(textMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(pingMessage, nil); err != nil {
				return
			}
		}
	}
}
