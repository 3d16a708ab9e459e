package layout

import "github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"

// Config tunes the force simulation. Zero fields take the defaults below.
type Config struct {
	Width      float64
	Height     float64
	Padding    float64 // nodes are clamped to [Padding, size-Padding]
	Iterations int

	SameLayerRepulsion  float64
	CrossLayerRepulsion float64
	SpringConstant      float64
	Damping             float64

	// Seed drives initial placement; 0 seeds from the clock
	Seed int64
}

const (
	DefaultWidth               = 800.0
	DefaultHeight              = 600.0
	DefaultPadding             = 50.0
	DefaultIterations          = 300
	DefaultSameLayerRepulsion  = 2000.0
	DefaultCrossLayerRepulsion = 1000.0
	DefaultSpringConstant      = 0.1
	DefaultDamping             = 0.9
)

// DefaultConfig returns the standard layout parameters
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Padding <= 0 {
		c.Padding = DefaultPadding
	}
	// a canvas narrower than twice the padding collapses to its center line
	if c.Padding*2 > c.Width {
		c.Padding = c.Width / 2
	}
	if c.Padding*2 > c.Height {
		c.Padding = c.Height / 2
	}
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.SameLayerRepulsion <= 0 {
		c.SameLayerRepulsion = DefaultSameLayerRepulsion
	}
	if c.CrossLayerRepulsion <= 0 {
		c.CrossLayerRepulsion = DefaultCrossLayerRepulsion
	}
	if c.SpringConstant <= 0 {
		c.SpringConstant = DefaultSpringConstant
	}
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = DefaultDamping
	}
	return c
}

// Contains reports whether p lies inside the clamped layout area
func (c Config) Contains(p domain.Point) bool {
	c = c.withDefaults()
	return p.Finite() &&
		p.X >= c.Padding && p.X <= c.Width-c.Padding &&
		p.Y >= c.Padding && p.Y <= c.Height-c.Padding
}

func (c Config) repulsion(a, b domain.Layer) float64 {
	if a == b {
		return c.SameLayerRepulsion
	}
	return c.CrossLayerRepulsion
}
