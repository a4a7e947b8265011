package websocket

import (
	"time"

	"devlink-realtime/internal/models"
	"devlink-realtime/pkg/logger"

	"github.com/gorilla/websocket"
)

// Options tunes the WebSocket pumps.
type Options struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = o.PingInterval + 20*time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	return o
}

// Conn binds an admitted Client to a WebSocket.
type Conn struct {
	client *Client
	conn   *websocket.Conn
	opts   Options
}

// ServeConn registers client with its hub and starts both pumps. It returns
// false, after closing the socket, if the hub has stopped.
func ServeConn(conn *websocket.Conn, client *Client, opts Options) bool {
	c := &Conn{client: client, conn: conn, opts: opts.withDefaults()}

	if !client.hub.Register(client) {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		return false
	}

	go c.WritePump()
	go c.ReadPump()
	return true
}

// Reject writes a connect_error frame and closes the socket with a policy
// violation. The connection never reaches the hub.
func Reject(conn *websocket.Conn, reason string, writeWait time.Duration) {
	defer conn.Close()

	frame, err := models.EncodeFrame(models.EventConnectError, models.ConnectError{Message: reason})
	if err != nil {
		logger.Error("Error encoding connect_error: %v", err)
		return
	}
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, truncateReason(reason))
	conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

func (c *Conn) ReadPump() {
	defer func() {
		c.client.hub.Unregister(c.client)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Error("WebSocket error on session %s: %v", c.client.id, err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.client.handleFrame(message)
	}
}

func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.client.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on session %s: %v", c.client.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) closeWith(code int, reason string) {
	deadline := time.Now().Add(c.opts.WriteWait)
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.conn.Close()
}

// Close frames carry at most 123 bytes of reason.
func truncateReason(reason string) string {
	if len(reason) > 123 {
		return reason[:123]
	}
	return reason
}
