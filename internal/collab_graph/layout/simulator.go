package layout

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"go.uber.org/zap"
)

// Result summarizes one layout pass
type Result struct {
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
	// Skipped counts per-node velocity updates dropped for non-finite forces
	Skipped int `json:"skipped"`
}

// Simulator computes a force-directed layout in a fixed number of
// synchronous iterations. Pairwise repulsion is O(n²) per iteration.
type Simulator struct {
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger
}

// NewSimulator creates a simulator; a nil logger disables logging
func NewSimulator(cfg Config, logger *zap.Logger) *Simulator {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Config returns the effective configuration
func (s *Simulator) Config() Config {
	return s.cfg
}

type state struct {
	nodes  []domain.GraphNode
	links  []linkRef
	fx, fy []float64
}

type linkRef struct {
	src, dst int
	strength float64
}

// Run lays out g and writes the final positions back into it. The context
// is checked between iterations; on cancellation nothing is written.
func (s *Simulator) Run(ctx context.Context, g *graph.Graph) (Result, error) {
	start := time.Now()

	st := s.prepare(g.Snapshot(), g.Links())

	var res Result
	for i := 0; i < s.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Skipped += s.step(st)
		res.Iterations++
	}

	g.StoreLayout(st.nodes)
	res.Duration = time.Since(start)

	if res.Skipped > 0 {
		s.logger.Warn("layout skipped non-finite velocity updates",
			zap.Int("skipped", res.Skipped),
			zap.Int("nodes", len(st.nodes)),
		)
	}
	s.logger.Debug("layout pass finished",
		zap.Int("nodes", len(st.nodes)),
		zap.Int("links", len(st.links)),
		zap.Int("iterations", res.Iterations),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (s *Simulator) prepare(nodes []domain.GraphNode, links []domain.GraphLink) *state {
	index := make(map[string]int, len(nodes))
	for i := range nodes {
		index[nodes[i].ID] = i
		if !s.cfg.Contains(nodes[i].Position) {
			nodes[i].Position = s.randomPoint()
			nodes[i].Velocity = domain.Velocity{}
		}
	}

	refs := make([]linkRef, 0, len(links))
	for _, l := range links {
		refs = append(refs, linkRef{src: index[l.Source], dst: index[l.Target], strength: l.Strength})
	}

	return &state{
		nodes: nodes,
		links: refs,
		fx:    make([]float64, len(nodes)),
		fy:    make([]float64, len(nodes)),
	}
}

func (s *Simulator) randomPoint() domain.Point {
	w := s.cfg.Width - 2*s.cfg.Padding
	h := s.cfg.Height - 2*s.cfg.Padding
	return domain.Point{
		X: s.cfg.Padding + s.rng.Float64()*w,
		Y: s.cfg.Padding + s.rng.Float64()*h,
	}
}

// step runs one iteration and returns how many node updates were skipped
func (s *Simulator) step(st *state) int {
	nodes := st.nodes
	for i := range nodes {
		st.fx[i], st.fy[i] = 0, 0
	}

	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			dx := nodes[i].Position.X - nodes[j].Position.X
			dy := nodes[i].Position.Y - nodes[j].Position.Y
			dist := math.Hypot(dx, dy)
			if dist == 0 {
				// coincident nodes: pick a direction so they can separate
				angle := s.rng.Float64() * 2 * math.Pi
				dx, dy, dist = math.Cos(angle), math.Sin(angle), 1
			}
			d := math.Max(dist, 1)
			f := s.cfg.repulsion(nodes[i].Layer, nodes[j].Layer) / (d * d)
			ux, uy := dx/dist, dy/dist
			st.fx[i] += ux * f
			st.fy[i] += uy * f
			st.fx[j] -= ux * f
			st.fy[j] -= uy * f
		}
	}

	for _, l := range st.links {
		dx := nodes[l.dst].Position.X - nodes[l.src].Position.X
		dy := nodes[l.dst].Position.Y - nodes[l.src].Position.Y
		// magnitude k*strength*d along the unit vector reduces to k*strength*delta
		k := s.cfg.SpringConstant * l.strength
		st.fx[l.src] += k * dx
		st.fy[l.src] += k * dy
		st.fx[l.dst] -= k * dx
		st.fy[l.dst] -= k * dy
	}

	skipped := 0
	minX, maxX := s.cfg.Padding, s.cfg.Width-s.cfg.Padding
	minY, maxY := s.cfg.Padding, s.cfg.Height-s.cfg.Padding
	for i := range nodes {
		n := &nodes[i]
		vx := (n.Velocity.VX + st.fx[i]) * s.cfg.Damping
		vy := (n.Velocity.VY + st.fy[i]) * s.cfg.Damping
		if !finite(vx) || !finite(vy) {
			skipped++
			continue
		}
		n.Velocity = domain.Velocity{VX: vx, VY: vy}
		n.Position.X = clamp(n.Position.X+vx, minX, maxX)
		n.Position.Y = clamp(n.Position.Y+vy, minY, maxY)
	}
	return skipped
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
