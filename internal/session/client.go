package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shineIB/flowsync/internal/models"
)

const (
	// DefaultQueueSize bounds a client's outbound queue before the
	// drop-oldest policy kicks in.
	DefaultQueueSize = 256

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Client is the hub's handle on one live connection. Outbound messages
// go through a bounded queue drained by WriteLoop so a slow consumer
// never blocks the hub. When the queue is full the oldest supersede-able
// message (cursor or position update) is dropped; structural edits are
// kept regardless of queue depth.
type Client struct {
	ClientID string
	Color    string

	conn     *websocket.Conn
	maxQueue int

	mu     sync.Mutex
	queue  []models.Message
	hook   func(models.Message)
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func NewClient(clientID string, conn *websocket.Conn, maxQueue int) *Client {
	if maxQueue <= 0 {
		maxQueue = DefaultQueueSize
	}
	return &Client{
		ClientID: clientID,
		conn:     conn,
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Message)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send enqueues a message for delivery. It never blocks.
func (c *Client) Send(msg models.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.hook != nil {
		hook := c.hook
		c.mu.Unlock()
		hook(msg)
		return
	}

	if len(c.queue) >= c.maxQueue {
		c.dropOldestStale()
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// dropOldestStale removes the oldest supersede-able message from the
// queue. Structural edits (node/edge add, update, delete) are never
// dropped, so the queue may exceed its bound when only those remain.
func (c *Client) dropOldestStale() {
	for i := range c.queue {
		if c.queue[i].Supersedeable() {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// QueueLen reports the current outbound queue depth.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops WriteLoop. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) drain() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// WriteLoop drains the queue onto the connection and keeps the peer
// alive with periodic pings. It returns when the connection fails or
// Close is called; the caller owns closing the underlying conn.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
			for _, msg := range c.drain() {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteJSON(msg); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
