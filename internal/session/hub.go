package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/metrics"
	"github.com/shineIB/flowsync/internal/models"
	"github.com/shineIB/flowsync/internal/state"
)

// Publisher forwards a broadcaster-produced message to the other
// server instances. Implemented by the redis bridge; nil-able so the
// hub keeps working local-only when the bridge is down.
type Publisher interface {
	Publish(msg models.Message)
}

// Hub is the single shared broadcast surface of the process. It owns
// the client map keyed by client_id; the registry and the diagram
// shadow hang off it. Fan-out excludes the sender by client_id, never
// by connection, so a reconnecting client does not see its own echoes.
type Hub struct {
	log      *zap.Logger
	registry *Registry
	diagram  *state.Diagram

	mu      sync.Mutex
	clients map[string]*Client

	pubMu     sync.Mutex
	publisher Publisher

	queueSize int
}

func NewHub(log *zap.Logger, queueSize int) *Hub {
	return &Hub{
		log:       log,
		registry:  NewRegistry(),
		diagram:   state.NewDiagram(),
		clients:   make(map[string]*Client),
		queueSize: queueSize,
	}
}

func (h *Hub) Registry() *Registry     { return h.registry }
func (h *Hub) Diagram() *state.Diagram { return h.diagram }

// SetPublisher attaches the cross-instance bridge. Wired after
// construction because the bridge also needs the hub for replay.
func (h *Hub) SetPublisher(p Publisher) {
	h.pubMu.Lock()
	h.publisher = p
	h.pubMu.Unlock()
}

// NewClient builds a client bound to this hub's configured queue size.
func (h *Hub) NewClient(clientID string, conn *websocket.Conn) *Client {
	return NewClient(clientID, conn, h.queueSize)
}

// Join registers the client, queues its welcome frame and announces
// the join to everyone else, locally and across the bridge. If the
// same client_id is already connected the previous client is closed
// and replaced: last connect wins. The registry mutation and the map
// swap share one critical section, so a racing disconnect of the
// previous connection can never observe the new session without the
// new client also being in the map.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	sess, presence := h.registry.Register(c.ClientID)
	c.Color = sess.Color
	prev := h.clients[c.ClientID]
	h.clients[c.ClientID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
		h.log.Info("replaced existing session",
			zap.String("client_id", c.ClientID))
	}

	c.Send(models.Message{
		Type:             models.TypeWelcome,
		ClientID:         c.ClientID,
		Color:            c.Color,
		TotalClients:     &presence.TotalClients,
		ConnectedClients: presence.ConnectedClients,
		ClientColors:     presence.ClientColors,
		Cursors:          presence.Cursors,
	})

	h.broadcast(models.Message{
		Type:         models.TypeClientJoined,
		ClientID:     c.ClientID,
		Color:        c.Color,
		TotalClients: &presence.TotalClients,
		Timestamp:    now(),
	})

	metrics.SetConnectedClients(presence.TotalClients)
	h.log.Info("client connected",
		zap.String("client_id", c.ClientID),
		zap.Int("total_clients", presence.TotalClients))
}

// Leave tears down one connection. It is a no-op unless c is still the
// registered connection for its client_id, which makes the disconnect
// path safe to run from racing close/error paths and keeps a reconnect
// from tearing down its successor. The identity check and the
// unregister happen under the same lock as Join's register-and-swap:
// a stale Leave can never unregister a successor's session.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if h.clients[c.ClientID] != c {
		h.mu.Unlock()
		c.Close()
		return
	}
	delete(h.clients, c.ClientID)
	presence, removed := h.registry.Unregister(c.ClientID)
	h.mu.Unlock()

	c.Close()
	if !removed {
		return
	}

	h.broadcast(models.Message{
		Type:         models.TypeClientLeft,
		ClientID:     c.ClientID,
		TotalClients: &presence.TotalClients,
		Timestamp:    now(),
	})

	metrics.SetConnectedClients(presence.TotalClients)
	h.log.Info("client disconnected",
		zap.String("client_id", c.ClientID),
		zap.Int("total_clients", presence.TotalClients))
}

// HandleInbound runs the broadcaster's dispatch path for one raw frame
// from c. Malformed or unrecognized frames are logged and dropped; the
// connection stays open either way.
func (h *Hub) HandleInbound(c *Client, raw []byte) {
	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.MessageDropped("unparsable")
		h.log.Warn("dropping unparsable frame",
			zap.String("client_id", c.ClientID),
			zap.Error(err))
		return
	}
	if err := msg.Validate(); err != nil {
		metrics.MessageDropped("invalid")
		h.log.Warn("dropping invalid frame",
			zap.String("client_id", c.ClientID),
			zap.String("type", msg.Type),
			zap.Error(err))
		return
	}

	// The sender's identity is authoritative; whatever the client put
	// in the frame is overwritten.
	msg.ClientID = c.ClientID
	msg.Color = c.Color
	msg.Timestamp = now()

	if msg.Type == models.TypeCursorMove {
		h.registry.SetCursor(c.ClientID, models.Position{X: *msg.X, Y: *msg.Y})
	}

	cascades := h.diagram.Apply(msg)

	metrics.MessageReceived(msg.Type)
	h.broadcast(msg)
	for _, extra := range cascades {
		h.broadcast(extra)
	}
}

// DeliverRemote replays one bridge message into the local clients.
// Messages whose client_id is connected locally are skipped: that
// client's own instance already fanned them out here. Remote events
// still feed the diagram shadow, but their cascades are discarded
// because the originating instance publishes those explicitly.
func (h *Hub) DeliverRemote(msg models.Message) {
	if h.registry.IsActive(msg.ClientID) {
		return
	}
	_ = h.diagram.Apply(msg)
	h.fanOut(msg)
}

// IsLocal reports whether clientID has an active local session.
func (h *Hub) IsLocal(clientID string) bool {
	return h.registry.IsActive(clientID)
}

// broadcast fans out to every local client except the sender and hands
// the message to the bridge. The publish happens outside every lock.
func (h *Hub) broadcast(msg models.Message) {
	h.fanOut(msg)

	h.pubMu.Lock()
	p := h.publisher
	h.pubMu.Unlock()
	if p != nil {
		p.Publish(msg)
	}
}

func (h *Hub) fanOut(msg models.Message) {
	h.mu.Lock()
	recipients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == msg.ClientID {
			continue
		}
		recipients = append(recipients, c)
	}
	h.mu.Unlock()

	for _, c := range recipients {
		c.Send(msg)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
