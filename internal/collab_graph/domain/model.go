package domain

import "math"

// Layer groups nodes for repulsion strength and filter toggles
type Layer string

const (
	LayerSemantic Layer = "semantic"
	LayerKinetic  Layer = "kinetic"
	LayerDynamic  Layer = "dynamic"
)

// AllLayers lists every layer in display order
var AllLayers = []Layer{LayerSemantic, LayerKinetic, LayerDynamic}

// Valid reports whether l is one of the known layers
func (l Layer) Valid() bool {
	return l == LayerSemantic || l == LayerKinetic || l == LayerDynamic
}

// NodeType is the entity kind a node represents
type NodeType string

const (
	NodeTypeEntity    NodeType = "entity"
	NodeTypeProcess   NodeType = "process"
	NodeTypeService   NodeType = "service"
	NodeTypeInterface NodeType = "interface"
	NodeTypeExternal  NodeType = "external"
)

// Valid reports whether t is one of the known node types
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeEntity, NodeTypeProcess, NodeTypeService, NodeTypeInterface, NodeTypeExternal:
		return true
	}
	return false
}

// DefaultNodeRadius is used when a node carries no radius hint
const DefaultNodeRadius = 20.0

// Point is a 2-D coordinate in canvas space
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Finite reports whether both coordinates are real numbers
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the euclidean distance between p and q
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Velocity is the simulation-owned per-node velocity
type Velocity struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// GraphNode is a node of the entity-relationship graph plus its runtime layout state
type GraphNode struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     NodeType `json:"type"`
	Layer    Layer    `json:"layer"`
	Radius   float64  `json:"radius"`
	Position Point    `json:"position"`
	Velocity Velocity `json:"velocity"`
	Pinned   bool     `json:"pinned"`
}

// GraphLink is a typed, weighted relation between two nodes
type GraphLink struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// LayerSet is the set of layers currently toggled on
type LayerSet map[Layer]bool

// NewLayerSet builds a set from the given layers
func NewLayerSet(layers ...Layer) LayerSet {
	s := make(LayerSet, len(layers))
	for _, l := range layers {
		s[l] = true
	}
	return s
}

// AllLayerSet returns a set with every layer enabled
func AllLayerSet() LayerSet {
	return NewLayerSet(AllLayers...)
}

// Has reports whether l is enabled
func (s LayerSet) Has(l Layer) bool {
	return s[l]
}

// Clone returns an independent copy of the set
func (s LayerSet) Clone() LayerSet {
	out := make(LayerSet, len(s))
	for l, on := range s {
		if on {
			out[l] = true
		}
	}
	return out
}
