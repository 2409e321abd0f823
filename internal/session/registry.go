package session

import (
	"sort"
	"sync"
	"time"

	"github.com/shineIB/flowsync/internal/models"
)

// Session is the server-side record of one connected client.
type Session struct {
	ClientID    string
	Color       string
	ConnectedAt time.Time
}

// Presence is the projection of the registry handed to welcome and
// join/leave payloads. It is built under the registry lock so
// TotalClients always equals len(ConnectedClients).
type Presence struct {
	TotalClients     int
	ConnectedClients []string
	ClientColors     map[string]string
	Cursors          map[string]models.Position
}

// Registry owns every mutable piece of shared session state: the
// active sessions, the assigned colors and the live cursor map.
// All mutation happens inside short critical sections here; nothing
// else in the process touches this state directly.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	cursors    map[string]models.Position
	colorIndex int
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		cursors:  make(map[string]models.Position),
	}
}

// Register inserts a session for clientID and assigns the next palette
// color. A reconnect with the same id replaces the previous session,
// so the id maps to exactly one active session afterwards.
func (r *Registry) Register(clientID string) (Session, Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	color := models.Palette[r.colorIndex%len(models.Palette)]
	r.colorIndex++

	s := &Session{
		ClientID:    clientID,
		Color:       color,
		ConnectedAt: time.Now().UTC(),
	}
	r.sessions[clientID] = s
	// A stale cursor from a previous connection with this id must not
	// survive into the new session.
	delete(r.cursors, clientID)

	return *s, r.presenceLocked()
}

// Unregister removes the session and its cursor entry. Unknown ids are
// a no-op; the bool reports whether anything was removed.
func (r *Registry) Unregister(clientID string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[clientID]
	delete(r.sessions, clientID)
	delete(r.cursors, clientID)
	return r.presenceLocked(), ok
}

// ListActive returns the active sessions ordered by connect time.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// SetCursor records the latest cursor position for an active session.
// Cursor updates for unknown ids are dropped so entries never outlive
// their session.
func (r *Registry) SetCursor(clientID string, pos models.Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[clientID]; !ok {
		return false
	}
	r.cursors[clientID] = pos
	return true
}

func (r *Registry) IsActive(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[clientID]
	return ok
}

func (r *Registry) Color(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	if !ok {
		return "", false
	}
	return s.Color, true
}

func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Presence() Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenceLocked()
}

func (r *Registry) presenceLocked() Presence {
	ids := make([]string, 0, len(r.sessions))
	colors := make(map[string]string, len(r.sessions))
	for id, s := range r.sessions {
		ids = append(ids, id)
		colors[id] = s.Color
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := r.sessions[ids[i]], r.sessions[ids[j]]
		if si.ConnectedAt.Equal(sj.ConnectedAt) {
			return si.ClientID < sj.ClientID
		}
		return si.ConnectedAt.Before(sj.ConnectedAt)
	})

	cursors := make(map[string]models.Position, len(r.cursors))
	for id, pos := range r.cursors {
		cursors[id] = pos
	}

	return Presence{
		TotalClients:     len(r.sessions),
		ConnectedClients: ids,
		ClientColors:     colors,
		Cursors:          cursors,
	}
}
