package session

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/models"
)

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), 0)
}

func hookedClient(id string) (*Client, *frameCapture) {
	c := NewClient(id, nil, 0)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func framesOfType(frames []models.Message, typ string) []models.Message {
	var out []models.Message
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func rawJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestJoinSendsWelcome(t *testing.T) {
	hub := newTestHub()
	c1, cap1 := hookedClient("a")
	hub.Join(c1)

	frames := cap1.list()
	if len(frames) != 1 || frames[0].Type != models.TypeWelcome {
		t.Fatalf("expected a single welcome frame, got %#v", frames)
	}
	w := frames[0]
	if w.ClientID != "a" || w.Color == "" {
		t.Fatalf("welcome missing identity: %#v", w)
	}
	if w.TotalClients == nil || *w.TotalClients != 1 || len(w.ConnectedClients) != 1 {
		t.Fatalf("welcome totals wrong: %#v", w)
	}
	if *w.TotalClients != len(w.ConnectedClients) {
		t.Fatalf("total %d != connected %d", *w.TotalClients, len(w.ConnectedClients))
	}
	if w.ClientColors["a"] != w.Color {
		t.Fatalf("color map out of sync: %#v", w.ClientColors)
	}
}

func TestJoinAnnouncesToPeers(t *testing.T) {
	hub := newTestHub()
	c1, cap1 := hookedClient("a")
	hub.Join(c1)

	c2, cap2 := hookedClient("b")
	hub.Join(c2)

	joined := framesOfType(cap1.list(), models.TypeClientJoined)
	if len(joined) != 1 || joined[0].ClientID != "b" {
		t.Fatalf("unexpected join announce: %#v", joined)
	}
	if joined[0].TotalClients == nil || *joined[0].TotalClients != 2 {
		t.Fatalf("unexpected join total: %#v", joined[0].TotalClients)
	}

	// The joiner itself sees no client_joined echo for its own join.
	if got := framesOfType(cap2.list(), models.TypeClientJoined); len(got) != 0 {
		t.Fatalf("joiner received its own join: %#v", got)
	}
}

func TestFanOutExcludesSender(t *testing.T) {
	hub := newTestHub()
	c1, cap1 := hookedClient("a")
	c2, cap2 := hookedClient("b")
	hub.Join(c1)
	hub.Join(c2)

	before := len(cap1.list())

	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type":      models.TypeNodeAdd,
		"client_id": "spoofed",
		"node": map[string]any{
			"id": "n1", "type": "service",
			"position": map[string]float64{"x": 10, "y": 10},
			"data":     map[string]any{"label": "X"},
		},
	}))

	got := framesOfType(cap2.list(), models.TypeNodeAdd)
	if len(got) != 1 {
		t.Fatalf("expected one node_add at peer, got %#v", got)
	}
	if got[0].ClientID != "a" {
		t.Fatalf("expected sender id stamped over client-supplied value, got %q", got[0].ClientID)
	}
	if got[0].Color != c1.Color || got[0].Timestamp == "" {
		t.Fatalf("expected derived fields added: %#v", got[0])
	}
	if got[0].Node == nil || got[0].Node.ID != "n1" {
		t.Fatalf("payload not preserved: %#v", got[0].Node)
	}

	if after := len(cap1.list()); after != before {
		t.Fatalf("sender received its own event: %#v", cap1.list()[before:])
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	hub := newTestHub()
	c1, _ := hookedClient("a")
	c2, cap2 := hookedClient("b")
	hub.Join(c1)
	hub.Join(c2)
	before := len(cap2.list())

	hub.HandleInbound(c1, []byte("not json"))
	hub.HandleInbound(c1, rawJSON(t, map[string]any{"type": "node_add"}))
	hub.HandleInbound(c1, rawJSON(t, map[string]any{"type": "bogus"}))

	if after := len(cap2.list()); after != before {
		t.Fatalf("invalid frames leaked to peers: %#v", cap2.list()[before:])
	}
}

func TestCursorMoveUpdatesPresence(t *testing.T) {
	hub := newTestHub()
	c1, _ := hookedClient("a")
	c2, cap2 := hookedClient("b")
	hub.Join(c1)
	hub.Join(c2)

	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeCursorMove, "x": 3.5, "y": 7.0,
	}))

	got := framesOfType(cap2.list(), models.TypeCursorMove)
	if len(got) != 1 || *got[0].X != 3.5 || *got[0].Y != 7.0 || got[0].Color == "" {
		t.Fatalf("unexpected cursor frame: %#v", got)
	}

	p := hub.Registry().Presence()
	if pos, ok := p.Cursors["a"]; !ok || pos.X != 3.5 {
		t.Fatalf("cursor not tracked: %#v", p.Cursors)
	}
}

func TestNodeDeleteCascadesEdgeDeletes(t *testing.T) {
	hub := newTestHub()
	c1, _ := hookedClient("a")
	c2, cap2 := hookedClient("b")
	hub.Join(c1)
	hub.Join(c2)

	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeNodeAdd, "node": map[string]any{"id": "n1"},
	}))
	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeNodeAdd, "node": map[string]any{"id": "n2"},
	}))
	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeEdgeAdd, "edge": map[string]any{"id": "e1", "source": "n1", "target": "n2"},
	}))
	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeEdgeAdd, "edge": map[string]any{"id": "e2", "source": "n2", "target": "n1"},
	}))

	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeNodeDelete, "id": "n1",
	}))

	dels := framesOfType(cap2.list(), models.TypeEdgeDelete)
	if len(dels) != 2 {
		t.Fatalf("expected both dependent edges deleted, got %#v", dels)
	}
	if dels[0].ID != "e1" || dels[1].ID != "e2" {
		t.Fatalf("unexpected cascade order: %#v", dels)
	}
	for _, d := range dels {
		if d.ClientID != "a" {
			t.Fatalf("cascade not attributed to deleting client: %#v", d)
		}
	}

	nodes, edges := hub.Diagram().Snapshot()
	if len(nodes) != 1 || len(edges) != 0 {
		t.Fatalf("unexpected shadow after cascade: nodes=%d edges=%d", len(nodes), len(edges))
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	hub := newTestHub()
	old, _ := hookedClient("a")
	peer, capPeer := hookedClient("b")
	hub.Join(old)
	hub.Join(peer)

	replacement, capNew := hookedClient("a")
	hub.Join(replacement)

	if total := hub.Registry().Total(); total != 2 {
		t.Fatalf("expected one session per id, total %d", total)
	}

	// The superseded connection's disconnect must not announce a leave
	// or tear down the replacement.
	before := len(framesOfType(capPeer.list(), models.TypeClientLeft))
	hub.Leave(old)
	if got := len(framesOfType(capPeer.list(), models.TypeClientLeft)); got != before {
		t.Fatalf("stale connection produced client_left")
	}
	if total := hub.Registry().Total(); total != 2 {
		t.Fatalf("stale leave removed live session, total %d", total)
	}

	// The replacement still works.
	hub.HandleInbound(peer, rawJSON(t, map[string]any{
		"type": models.TypeNodeAdd, "node": map[string]any{"id": "n9"},
	}))
	if got := framesOfType(capNew.list(), models.TypeNodeAdd); len(got) != 1 {
		t.Fatalf("replacement client not receiving: %#v", capNew.list())
	}
}

func TestLeaveAnnouncesOnce(t *testing.T) {
	hub := newTestHub()
	c1, _ := hookedClient("a")
	c2, cap2 := hookedClient("b")
	hub.Join(c1)
	hub.Join(c2)

	hub.Leave(c1)
	hub.Leave(c1) // racing disconnect paths collapse to one announce

	left := framesOfType(cap2.list(), models.TypeClientLeft)
	if len(left) != 1 {
		t.Fatalf("expected exactly one client_left, got %#v", left)
	}
	if left[0].ClientID != "a" || left[0].TotalClients == nil || *left[0].TotalClients != 1 {
		t.Fatalf("unexpected client_left payload: %#v", left[0])
	}
}

// The old connection's disconnect racing a reconnect with the same id
// must never strip the replacement's registry session: whichever order
// the two critical sections run in, the winning client stays both in
// the client map and in the registry.
func TestReconnectRacingDisconnectKeepsSession(t *testing.T) {
	for i := 0; i < 500; i++ {
		hub := newTestHub()
		old, _ := hookedClient("a")
		hub.Join(old)

		replacement, capNew := hookedClient("a")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Join(replacement)
		}()
		go func() {
			defer wg.Done()
			hub.Leave(old)
		}()
		wg.Wait()

		if !hub.Registry().IsActive("a") {
			t.Fatalf("iteration %d: replacement lost its registry session", i)
		}
		if total := hub.Registry().Total(); total != 1 {
			t.Fatalf("iteration %d: expected one session, got %d", i, total)
		}
		hub.mu.Lock()
		live := hub.clients["a"]
		hub.mu.Unlock()
		if live != replacement {
			t.Fatalf("iteration %d: replacement missing from client map", i)
		}

		// With the session intact, bridge replay keeps suppressing the
		// client's own events.
		before := len(capNew.list())
		hub.DeliverRemote(models.Message{Type: models.TypeNodeAdd, ClientID: "a", Node: &models.Node{ID: "x"}})
		if after := len(capNew.list()); after != before {
			t.Fatalf("iteration %d: client received its own event via the bridge", i)
		}
	}
}

func TestHubClientFactoryUsesQueueBound(t *testing.T) {
	hub := NewHub(zap.NewNop(), 2)
	c := hub.NewClient("a", nil)

	c.Send(models.Message{Type: models.TypeCursorMove})
	c.Send(models.Message{Type: models.TypeNodeAdd, Node: &models.Node{ID: "n1"}})
	c.Send(models.Message{Type: models.TypeCursorMove})

	if got := c.QueueLen(); got != 2 {
		t.Fatalf("expected queue bounded at 2, got %d", got)
	}
}

type capturePublisher struct {
	msgs []models.Message
}

func (p *capturePublisher) Publish(msg models.Message) { p.msgs = append(p.msgs, msg) }

func TestBroadcastReachesPublisher(t *testing.T) {
	hub := newTestHub()
	pub := &capturePublisher{}
	hub.SetPublisher(pub)

	c1, _ := hookedClient("a")
	hub.Join(c1)

	if len(pub.msgs) != 1 || pub.msgs[0].Type != models.TypeClientJoined {
		t.Fatalf("expected join published to bridge, got %#v", pub.msgs)
	}

	hub.HandleInbound(c1, rawJSON(t, map[string]any{
		"type": models.TypeNodeAdd, "node": map[string]any{"id": "n1"},
	}))
	if len(pub.msgs) != 2 || pub.msgs[1].Type != models.TypeNodeAdd {
		t.Fatalf("expected edit published to bridge, got %#v", pub.msgs)
	}

	hub.Leave(c1)
	last := pub.msgs[len(pub.msgs)-1]
	if last.Type != models.TypeClientLeft || last.TotalClients == nil || *last.TotalClients != 0 {
		t.Fatalf("expected leave published to bridge with count, got %#v", last)
	}
}

func TestDeliverRemoteSuppressesLocalClientIDs(t *testing.T) {
	hub := newTestHub()
	c1, cap1 := hookedClient("a")
	hub.Join(c1)
	before := len(cap1.list())

	// A remote message from a client connected locally was already
	// fanned out here by its own instance.
	hub.DeliverRemote(models.Message{Type: models.TypeNodeAdd, ClientID: "a", Node: &models.Node{ID: "n1"}})
	if after := len(cap1.list()); after != before {
		t.Fatalf("locally-connected sender's message was replayed: %#v", cap1.list()[before:])
	}

	hub.DeliverRemote(models.Message{Type: models.TypeNodeAdd, ClientID: "remote", Node: &models.Node{ID: "n2"}})
	got := framesOfType(cap1.list(), models.TypeNodeAdd)
	if len(got) != 1 || got[0].ClientID != "remote" {
		t.Fatalf("expected remote message delivered once, got %#v", got)
	}

	// Remote events still feed the shadow.
	nodes, _ := hub.Diagram().Snapshot()
	if len(nodes) != 1 || nodes[0].ID != "n2" {
		t.Fatalf("unexpected shadow: %#v", nodes)
	}
}
