package graph

import (
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
)

// Graph holds the node/link set of one visualization together with the
// runtime layout state of every node. The node and link sets never change
// after construction; only positions, velocities and pins do.
type Graph struct {
	mu    sync.RWMutex
	nodes []domain.GraphNode
	links []domain.GraphLink
	index map[string]int
}

// New validates nodes and links and builds a graph. Any dangling link
// endpoint, empty or duplicate node id, unknown layer or node type, or
// out-of-range strength aborts construction with a *domain.GraphIntegrityError.
func New(nodes []domain.GraphNode, links []domain.GraphLink) (*Graph, error) {
	var violations []domain.IntegrityViolation

	index := make(map[string]int, len(nodes))
	ns := make([]domain.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			violations = append(violations, domain.IntegrityViolation{Link: -1, Reason: "empty node id"})
			continue
		}
		if _, dup := index[n.ID]; dup {
			violations = append(violations, domain.IntegrityViolation{Link: -1, NodeID: n.ID, Reason: "duplicate node id"})
			continue
		}
		n = normalizeNode(n)
		if !n.Layer.Valid() {
			violations = append(violations, domain.IntegrityViolation{Link: -1, NodeID: n.ID, Reason: "unknown layer " + string(n.Layer) + " on"})
			continue
		}
		if !n.Type.Valid() {
			violations = append(violations, domain.IntegrityViolation{Link: -1, NodeID: n.ID, Reason: "unknown type " + string(n.Type) + " on"})
			continue
		}
		index[n.ID] = len(ns)
		ns = append(ns, n)
	}

	ls := make([]domain.GraphLink, 0, len(links))
	for i, l := range links {
		if _, ok := index[l.Source]; !ok {
			violations = append(violations, domain.IntegrityViolation{Link: i, NodeID: l.Source, Reason: "unknown source"})
		}
		if _, ok := index[l.Target]; !ok {
			violations = append(violations, domain.IntegrityViolation{Link: i, NodeID: l.Target, Reason: "unknown target"})
		}
		if math.IsNaN(l.Strength) || l.Strength < 0 || l.Strength > 1 {
			violations = append(violations, domain.IntegrityViolation{Link: i, NodeID: l.Source + "->" + l.Target, Reason: "strength outside (0,1] on"})
		}
		if l.Strength == 0 {
			l.Strength = 1
		}
		ls = append(ls, l)
	}

	if len(violations) > 0 {
		return nil, &domain.GraphIntegrityError{Violations: violations}
	}

	return &Graph{nodes: ns, links: ls, index: index}, nil
}

func normalizeNode(n domain.GraphNode) domain.GraphNode {
	if n.Layer == "" {
		n.Layer = domain.LayerSemantic
	}
	if n.Type == "" {
		n.Type = domain.NodeTypeEntity
	}
	if n.Radius <= 0 {
		n.Radius = domain.DefaultNodeRadius
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	return n
}

// ApplyLayerFilter returns a new graph holding only the nodes whose layer is
// active and the links whose endpoints both survive. The receiver is not
// modified, so filtering with every layer enabled restores the full set.
func (g *Graph) ApplyLayerFilter(active domain.LayerSet) *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := &Graph{index: make(map[string]int)}
	for _, n := range g.nodes {
		if !active.Has(n.Layer) {
			continue
		}
		out.index[n.ID] = len(out.nodes)
		out.nodes = append(out.nodes, n)
	}
	for _, l := range g.links {
		_, src := out.index[l.Source]
		_, dst := out.index[l.Target]
		if src && dst {
			out.links = append(out.links, l)
		}
	}
	return out
}

// SetNodePosition overwrites a node's position and pins it. Unknown ids are
// ignored; the return value reports whether the node exists.
func (g *Graph) SetNodePosition(id string, pos domain.Point) bool {
	if !pos.Finite() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return false
	}
	g.nodes[i].Position = pos
	g.nodes[i].Velocity = domain.Velocity{}
	g.nodes[i].Pinned = true
	return true
}

// StoreLayout writes simulated positions and velocities back. Nodes pinned in
// the graph keep their explicit position, including pins applied while the
// layout was being computed.
func (g *Graph) StoreLayout(nodes []domain.GraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range nodes {
		i, ok := g.index[n.ID]
		if !ok || g.nodes[i].Pinned {
			continue
		}
		g.nodes[i].Position = n.Position
		g.nodes[i].Velocity = n.Velocity
	}
}

// Snapshot returns a copy of all nodes in construction order
func (g *Graph) Snapshot() []domain.GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.GraphNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Links returns a copy of all links
func (g *Graph) Links() []domain.GraphLink {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.GraphLink, len(g.links))
	copy(out, g.links)
	return out
}

// Node returns the node with the given id
func (g *Graph) Node(id string) (domain.GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.index[id]
	if !ok {
		return domain.GraphNode{}, false
	}
	return g.nodes[i], true
}

// Has reports whether a node id exists
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// Positions returns the current position of every node keyed by id
func (g *Graph) Positions() map[string]domain.Point {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]domain.Point, len(g.nodes))
	for _, n := range g.nodes {
		out[n.ID] = n.Position
	}
	return out
}

// Pins returns the explicit positions of pinned nodes
func (g *Graph) Pins() map[string]domain.Point {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]domain.Point)
	for _, n := range g.nodes {
		if n.Pinned {
			out[n.ID] = n.Position
		}
	}
	return out
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// LinkCount returns the number of links
func (g *Graph) LinkCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.links)
}
