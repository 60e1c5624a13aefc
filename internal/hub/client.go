package hub

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = 60 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection attached to a hub session. The identity
// fields fill in when the join frame arrives.
type Client struct {
	session *Session
	conn    *websocket.Conn
	send    chan []byte

	userID   string
	userName string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// readPump feeds inbound frames into the session loop. One reader per
// connection; exits when the socket drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.session.unregister <- c:
		case <-c.session.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed unexpectedly", "error", err)
			}
			return
		}
		// Application-level heartbeats also refresh the read deadline.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.inbound <- inboundFrame{client: c, data: data}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// enqueue queues a frame, dropping it if the client's buffer is full.
// A slow consumer must not stall the whole session.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("dropping frame for slow client", "user_id", c.userID)
	}
}
