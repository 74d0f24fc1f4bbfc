package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/chat-core/internal/metrics"
)

// Client is one authenticated socket connection. A user may hold several.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	Send chan []byte
	once sync.Once
	done chan struct{}
}

func NewClient(conn *websocket.Conn, id, userID string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		Send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Enqueue hands a frame to the write pump. Frames are dropped when the buffer
// is full; a slow client must re-sync over HTTP.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	case c.Send <- frame:
		return true
	default:
		metrics.BroadcastDropped.Inc()
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump drains the send buffer onto the socket and keeps the connection
// alive with pings. Runs in its own goroutine per connection.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case frame := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
