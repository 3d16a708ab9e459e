package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

// maxLayoutNodes bounds a single request; repulsion is quadratic in nodes
const maxLayoutNodes = 2000

// ErrGraphTooLarge is returned for documents above maxLayoutNodes
var ErrGraphTooLarge = fmt.Errorf("graph exceeds %d nodes", maxLayoutNodes)

// LayoutRequest is one layout job
type LayoutRequest struct {
	Graph      graph.Document `json:"graph" binding:"required"`
	Width      float64        `json:"width,omitempty" binding:"gte=0"`
	Height     float64        `json:"height,omitempty" binding:"gte=0"`
	Iterations int            `json:"iterations,omitempty" binding:"gte=0,lte=5000"`
	Seed       int64          `json:"seed,omitempty"`
	Layers     []domain.Layer `json:"layers,omitempty"`
}

// LayoutResponse carries the positioned graph
type LayoutResponse struct {
	Frame  graph.Frame   `json:"frame"`
	Result layout.Result `json:"result"`
	Width  float64       `json:"width"`
	Height float64       `json:"height"`
}

// LayoutService runs one-shot force layouts
type LayoutService struct {
	defaults layout.Config
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewLayoutService creates a new LayoutService. Zero request fields fall
// back to defaults.
func NewLayoutService(defaults layout.Config, metrics *observability.Collector, logger *zap.Logger) *LayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewCollector("collab")
	}
	return &LayoutService{defaults: defaults, metrics: metrics, logger: logger}
}

// Run builds the graph, filters it to the requested layers and lays it out
func (s *LayoutService) Run(ctx context.Context, req LayoutRequest) (*LayoutResponse, error) {
	if len(req.Graph.Nodes) > maxLayoutNodes {
		return nil, ErrGraphTooLarge
	}
	g, err := graph.FromDocument(req.Graph)
	if err != nil {
		return nil, err
	}

	if len(req.Layers) > 0 {
		for _, l := range req.Layers {
			if !l.Valid() {
				return nil, fmt.Errorf("unknown layer %q", l)
			}
		}
		g = g.ApplyLayerFilter(domain.NewLayerSet(req.Layers...))
	}

	cfg := s.defaults
	if req.Width > 0 {
		cfg.Width = req.Width
	}
	if req.Height > 0 {
		cfg.Height = req.Height
	}
	if req.Iterations > 0 {
		cfg.Iterations = req.Iterations
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}

	sim := layout.NewSimulator(cfg, s.logger)
	start := time.Now()
	res, err := sim.Run(ctx, g)
	s.metrics.ObserveLayout(err, time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("layout cancelled", zap.Int("nodes", g.Len()), zap.Error(err))
		}
		return nil, err
	}

	eff := sim.Config()
	return &LayoutResponse{
		Frame:  g.RenderFrame(),
		Result: res,
		Width:  eff.Width,
		Height: eff.Height,
	}, nil
}
