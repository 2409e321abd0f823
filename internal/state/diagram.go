package state

import (
	"sort"
	"sync"

	"github.com/shineIB/flowsync/internal/models"
)

// Diagram is the server's shadow of the shared canvas, fed by every
// validated event (local and bridge-delivered). It exists for two
// reasons: emitting the cascading edge deletes a node_delete implies,
// and serving the current node/edge sets to late joiners. It is
// ephemeral and last-write-wins, same as the client-side views.
type Diagram struct {
	mu    sync.Mutex
	nodes map[string]models.Node
	edges map[string]models.Edge
}

func NewDiagram() *Diagram {
	return &Diagram{
		nodes: make(map[string]models.Node),
		edges: make(map[string]models.Edge),
	}
}

// Apply folds one validated event into the shadow and returns any
// follow-up messages the broadcaster should fan out alongside it.
// Today that is only the edge_delete cascade for node_delete.
func (d *Diagram) Apply(msg models.Message) []models.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch msg.Type {
	case models.TypeNodeAdd:
		// Duplicate adds are no-ops, mirroring receiver idempotence.
		if _, ok := d.nodes[msg.Node.ID]; !ok {
			d.nodes[msg.Node.ID] = normalizeNode(*msg.Node)
		}

	case models.TypeNodeMove:
		if n, ok := d.nodes[msg.ID]; ok {
			n.Position = *msg.Position
			d.nodes[msg.ID] = n
		}

	case models.TypeNodeUpdate:
		if n, ok := d.nodes[msg.ID]; ok {
			if n.Data == nil {
				n.Data = make(map[string]any, len(msg.Data))
			}
			for k, v := range msg.Data {
				n.Data[k] = v
			}
			d.nodes[msg.ID] = n
		}

	case models.TypeNodeDelete:
		delete(d.nodes, msg.ID)
		return d.cascadeLocked(msg)

	case models.TypeEdgeAdd:
		// Colliding edge ids resolve last-write-wins.
		d.edges[msg.Edge.ID] = *msg.Edge

	case models.TypeEdgeDelete:
		delete(d.edges, msg.ID)
	}
	return nil
}

// cascadeLocked removes every edge touching the deleted node and
// returns idempotent edge_delete messages for them, stamped with the
// deleting client's identity.
func (d *Diagram) cascadeLocked(del models.Message) []models.Message {
	var ids []string
	for id, e := range d.edges {
		if e.Source == del.ID || e.Target == del.ID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		delete(d.edges, id)
		out = append(out, models.Message{
			Type:      models.TypeEdgeDelete,
			ClientID:  del.ClientID,
			Color:     del.Color,
			Timestamp: del.Timestamp,
			ID:        id,
		})
	}
	return out
}

// Snapshot returns the current node and edge sets ordered by id.
func (d *Diagram) Snapshot() ([]models.Node, []models.Edge) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := make([]models.Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]models.Edge, 0, len(d.edges))
	for _, e := range d.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return nodes, edges
}

func normalizeNode(n models.Node) models.Node {
	if n.Type == "" {
		n.Type = models.NodeDefault
	}
	return n
}
