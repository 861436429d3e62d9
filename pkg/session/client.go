/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Client - 与协调服务器的 WebSocket 连接
 */
package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Sender delivers client frames to the coordinator. Send must not block.
type Sender interface {
	Send(msg *signaling.ClientMessage) error
}

// Client manages the WebSocket connection to the coordinator
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *signaling.ServerMessage
	outgoing  chan *signaling.ClientMessage

	mu     sync.RWMutex
	done   chan struct{}
	closed bool
}

// NewClient creates a client for serverURL (ws:// or wss://)
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *signaling.ServerMessage, sendBuffer),
		outgoing:  make(chan *signaling.ClientMessage, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Connect dials the coordinator and starts the pumps
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid coordinator URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)

	go c.readPump()
	go c.writePump()

	utils.Debug("[Client] connected to %s", u.Redacted())
	return nil
}

// readPump reads frames until the connection closes. The coordinator
// pings; gorilla answers with pongs from inside ReadMessage.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("[Client] read error: %v", err)
			}
			return
		}

		msg, err := signaling.DecodeServerMessage(data)
		if err != nil {
			utils.Debug("[Client] dropped frame: %v", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames to the connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				utils.Warn("[Client] write error: %v", err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the coordinator without blocking
func (c *Client) Send(msg *signaling.ClientMessage) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Incoming returns the channel of coordinator frames. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *signaling.ServerMessage {
	return c.incoming
}

// Close sends a close frame and releases the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
