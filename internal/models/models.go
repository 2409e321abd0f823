package models

import "errors"

// Message types exchanged over the collaboration WebSocket.
const (
	TypeWelcome      = "welcome"
	TypeClientJoined = "client_joined"
	TypeClientLeft   = "client_left"
	TypeCursorMove   = "cursor_move"
	TypeNodeAdd      = "node_add"
	TypeNodeMove     = "node_move"
	TypeNodeUpdate   = "node_update"
	TypeNodeDelete   = "node_delete"
	TypeEdgeAdd      = "edge_add"
	TypeEdgeDelete   = "edge_delete"
)

// Node types on the canvas.
const (
	NodeDefault  = "default"
	NodeService  = "service"
	NodeDatabase = "database"
	NodeGateway  = "gateway"
)

// Cursor colors assigned to clients, in round-robin order.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
	"#BB8FCE", "#85C1E9", "#F8B500", "#00CED1",
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type,omitempty"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Message is the single wire envelope for every frame, client- and
// server-originated. `type` selects which of the optional fields are
// meaningful; Validate enforces the per-type requirements at the
// transport boundary before anything reaches the broadcaster.
type Message struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id,omitempty"`
	Color     string `json:"color,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// Pointer so presence messages still carry the field when the
	// count drops to zero.
	TotalClients *int `json:"total_clients,omitempty"`
	X        *float64       `json:"x,omitempty"`
	Y        *float64       `json:"y,omitempty"`
	ID       string         `json:"id,omitempty"`
	Node     *Node          `json:"node,omitempty"`
	Edge     *Edge          `json:"edge,omitempty"`
	Position *Position      `json:"position,omitempty"`
	Data     map[string]any `json:"data,omitempty"`

	// welcome-only fields
	ConnectedClients []string            `json:"connected_clients,omitempty"`
	ClientColors     map[string]string   `json:"client_colors,omitempty"`
	Cursors          map[string]Position `json:"cursors,omitempty"`
}

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingFields = errors.New("missing required fields")
)

// Validate checks the per-type required fields for client-originated
// events. Server-originated types (welcome, client_joined, client_left)
// are rejected here: clients may not forge them.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeCursorMove:
		if m.X == nil || m.Y == nil {
			return ErrMissingFields
		}
	case TypeNodeAdd:
		if m.Node == nil || m.Node.ID == "" {
			return ErrMissingFields
		}
	case TypeNodeMove:
		if m.ID == "" || m.Position == nil {
			return ErrMissingFields
		}
	case TypeNodeUpdate:
		if m.ID == "" || m.Data == nil {
			return ErrMissingFields
		}
	case TypeNodeDelete, TypeEdgeDelete:
		if m.ID == "" {
			return ErrMissingFields
		}
	case TypeEdgeAdd:
		if m.Edge == nil || m.Edge.ID == "" || m.Edge.Source == "" || m.Edge.Target == "" {
			return ErrMissingFields
		}
	default:
		return ErrUnknownType
	}
	return nil
}

// Supersedeable reports whether a newer message of the same kind makes
// this one stale. Supersede-able messages are safe to drop under
// backpressure; structural edits are not.
func (m *Message) Supersedeable() bool {
	return m.Type == TypeCursorMove || m.Type == TypeNodeMove
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// AnalyzeRequest carries the diagram snapshot submitted for AI review.
type AnalyzeRequest struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (r *AnalyzeRequest) Validate() error {
	if r.Nodes == nil {
		return &ErrorResponse{
			Code:    "missing_nodes",
			Message: "Nodes field is required",
		}
	}
	if r.Edges == nil {
		r.Edges = []Edge{}
	}
	return nil
}

type AnalyzeResponse struct {
	Analysis  string `json:"analysis"`
	Timestamp string `json:"timestamp"`
}
