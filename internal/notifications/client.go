package notifications

import (
	"log/slog"
	"sync/atomic"
	"time"

	"combox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out early enough to keep a healthy peer
	// inside the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes caps a single frame from the peer. Message content
	// tops out at 4000 runes, so this leaves room for the envelope.
	maxInboundBytes = 16384

	// sendQueueSize is the per-connection outbound buffer. When it fills
	// the connection drops messages rather than block the hub.
	sendQueueSize = 256
)

// Client binds one websocket connection to the hub. Outbound events flow
// through the buffered Send queue; inbound frames are handed to
// IncomingHandler.
type Client struct {
	hub *Hub

	// The websocket connection. Nil in tests that never pump.
	Conn *websocket.Conn

	// Send is drained by the write loop. Publishers go through TrySend,
	// which never blocks and never writes to a closed channel.
	Send chan []byte

	// UserID for this connection.
	UserID uint

	// IncomingHandler receives raw inbound frames. Nil means inbound
	// traffic is ignored.
	IncomingHandler func(*Client, []byte)

	// dropped counts messages lost since the last gap notice reached
	// the peer.
	dropped atomic.Int64
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendQueueSize),
	}
}

// SendEvent marshals and queues an event for this connection only.
func (c *Client) SendEvent(event Event) {
	if data := event.Marshal(); data != nil {
		c.TrySend(data)
	}
}

// Run services the connection until the peer goes away: the write loop
// runs in its own goroutine, the read loop blocks the caller. Returning
// means the connection is closed and unregistered.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxInboundBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "user_id", c.UserID, "error", err)
			}
			break
		}

		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without ever blocking. On a full queue the
// message drops; the peer gets a gap notice carrying how many messages it
// lost as soon as the queue has room again, so it can re-fetch history
// instead of trusting the stream.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
	default:
		lost := c.dropped.Add(1)
		observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
		slog.Warn("send queue full, dropped message", "user_id", c.UserID, "lost", lost)
	}

	c.flushDropNotice()
}

// flushDropNotice announces an outstanding gap once the queue can take the
// notice. The counter keeps accumulating until one gets through.
func (c *Client) flushDropNotice() {
	lost := c.dropped.Load()
	if lost == 0 {
		return
	}
	notice := Event{Type: "messages_dropped", Payload: map[string]interface{}{
		"reason":  "buffer_full",
		"dropped": lost,
	}}
	data := notice.Marshal()
	if data == nil {
		return
	}
	select {
	case c.Send <- data:
		c.dropped.Add(-lost)
	default:
	}
}
