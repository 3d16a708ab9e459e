package graph

import "github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"

// ArrowFraction is where along a link the direction arrow is drawn
const ArrowFraction = 0.8

// RenderNode is the per-node data a renderer draws
type RenderNode struct {
	ID     string          `json:"id"`
	Label  string          `json:"label"`
	Layer  domain.Layer    `json:"layer"`
	Type   domain.NodeType `json:"type"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Radius float64         `json:"radius"`
	Pinned bool            `json:"pinned,omitempty"`
}

// RenderLink is the per-link data a renderer draws
type RenderLink struct {
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Type     string       `json:"type,omitempty"`
	SourceXY domain.Point `json:"sourceXY"`
	TargetXY domain.Point `json:"targetXY"`
	ArrowXY  domain.Point `json:"arrowXY"`
	Strength float64      `json:"strength"`
}

// Frame is a consistent read of the graph for one paint
type Frame struct {
	Nodes []RenderNode `json:"nodes"`
	Links []RenderLink `json:"links"`
}

// RenderFrame reads every node and link under a single read lock
func (g *Graph) RenderFrame() Frame {
	g.mu.RLock()
	defer g.mu.RUnlock()

	f := Frame{
		Nodes: make([]RenderNode, 0, len(g.nodes)),
		Links: make([]RenderLink, 0, len(g.links)),
	}
	for _, n := range g.nodes {
		f.Nodes = append(f.Nodes, RenderNode{
			ID:     n.ID,
			Label:  n.Label,
			Layer:  n.Layer,
			Type:   n.Type,
			X:      n.Position.X,
			Y:      n.Position.Y,
			Radius: n.Radius,
			Pinned: n.Pinned,
		})
	}
	for _, l := range g.links {
		src := g.nodes[g.index[l.Source]].Position
		dst := g.nodes[g.index[l.Target]].Position
		f.Links = append(f.Links, RenderLink{
			Source:   l.Source,
			Target:   l.Target,
			Type:     l.Type,
			SourceXY: src,
			TargetXY: dst,
			ArrowXY:  Along(src, dst, ArrowFraction),
			Strength: l.Strength,
		})
	}
	return f
}

// Along returns the point at fraction t of the way from a to b
func Along(a, b domain.Point, t float64) domain.Point {
	return domain.Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}

// WithPins returns a copy of f with the given nodes drawn pinned at their
// positions. Link endpoints and arrows follow the moved nodes. Ids missing
// from f are ignored.
func (f Frame) WithPins(pins map[string]domain.Point) Frame {
	out := Frame{
		Nodes: make([]RenderNode, len(f.Nodes)),
		Links: make([]RenderLink, len(f.Links)),
	}
	copy(out.Nodes, f.Nodes)
	copy(out.Links, f.Links)
	if len(pins) == 0 {
		return out
	}

	for i := range out.Nodes {
		if p, ok := pins[out.Nodes[i].ID]; ok {
			out.Nodes[i].X, out.Nodes[i].Y = p.X, p.Y
			out.Nodes[i].Pinned = true
		}
	}
	for i := range out.Links {
		l := &out.Links[i]
		src, srcOK := pins[l.Source]
		dst, dstOK := pins[l.Target]
		if !srcOK && !dstOK {
			continue
		}
		if srcOK {
			l.SourceXY = src
		}
		if dstOK {
			l.TargetXY = dst
		}
		l.ArrowXY = Along(l.SourceXY, l.TargetXY, ArrowFraction)
	}
	return out
}
