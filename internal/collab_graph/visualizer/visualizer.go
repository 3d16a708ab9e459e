// Package visualizer ties a graph, its force layout, the presence session
// and the local viewport together for a renderer.
package visualizer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/presence"
)

// Frame is everything a renderer needs for one paint
type Frame struct {
	graph.Frame
	Local         domain.Collaborator     `json:"local"`
	Collaborators []domain.Collaborator   `json:"collaborators"`
	Status        domain.ConnectionStatus `json:"status"`
	Zoom          float64                 `json:"zoom"`
	Layers        []domain.Layer          `json:"layers"`
}

// Visualizer renders the layer-filtered view of a session's graph. The
// session's graph is the source of truth for positions and pins; the view
// is rebuilt from it whenever the active layers change.
type Visualizer struct {
	session *presence.Session
	source  *graph.Graph
	sim     *layout.Simulator
	logger  *zap.Logger

	layoutMu sync.Mutex // serializes layout passes; sim is not goroutine safe

	mu     sync.RWMutex
	view   *graph.Graph
	layers domain.LayerSet
}

// New builds a visualizer over the session's graph with every layer
// enabled and runs the initial layout pass
func New(ctx context.Context, session *presence.Session, cfg layout.Config, logger *zap.Logger) (*Visualizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Visualizer{
		session: session,
		source:  session.Graph(),
		sim:     layout.NewSimulator(cfg, logger),
		logger:  logger.With(zap.String("session", session.ID())),
	}
	if _, err := v.SetLayers(ctx, domain.AllLayerSet()); err != nil {
		return nil, err
	}
	return v, nil
}

// SetLayers filters the graph to the given layers and lays the result out.
// Pinned nodes keep the position they were moved to.
func (v *Visualizer) SetLayers(ctx context.Context, layers domain.LayerSet) (layout.Result, error) {
	v.layoutMu.Lock()
	defer v.layoutMu.Unlock()

	layers = layers.Clone()
	view := v.source.ApplyLayerFilter(layers)
	res, err := v.sim.Run(ctx, view)
	if err != nil {
		return res, fmt.Errorf("layout: %w", err)
	}
	// remember positions so re-enabling a layer starts from them
	v.source.StoreLayout(view.Snapshot())

	v.mu.Lock()
	v.view = view
	v.layers = layers
	v.mu.Unlock()

	v.logger.Debug("layers applied",
		zap.Int("nodes", view.Len()),
		zap.Int("links", view.LinkCount()),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// Layers returns the active layers in a stable order
func (v *Visualizer) Layers() []domain.Layer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return sortedLayers(v.layers)
}

// ZoomIn steps the local zoom up and reports it to collaborators
func (v *Visualizer) ZoomIn() (float64, error) {
	return v.reportZoom(v.session.Viewport().Zoom() + presence.ZoomStep)
}

// ZoomOut steps the local zoom down and reports it to collaborators
func (v *Visualizer) ZoomOut() (float64, error) {
	return v.reportZoom(v.session.Viewport().Zoom() - presence.ZoomStep)
}

// ResetZoom restores the default zoom and reports it to collaborators
func (v *Visualizer) ResetZoom() (float64, error) {
	return v.reportZoom(presence.DefaultZoom)
}

func (v *Visualizer) reportZoom(level float64) (float64, error) {
	level = presence.ClampZoom(level)
	if err := v.session.ReportZoomChange(level); err != nil {
		return v.session.Viewport().Zoom(), err
	}
	return level, nil
}

// DragNode pins a visible node at p and broadcasts the move
func (v *Visualizer) DragNode(nodeID string, p domain.Point) error {
	v.mu.RLock()
	view := v.view
	v.mu.RUnlock()

	if !view.Has(nodeID) {
		return fmt.Errorf("drag %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	if err := v.session.ReportNodeMove(nodeID, p); err != nil {
		return err
	}
	view.SetNodePosition(nodeID, p)
	return nil
}

// MoveCursor broadcasts the local cursor position
func (v *Visualizer) MoveCursor(p domain.Point) error {
	return v.session.ReportCursorMove(p)
}

// Frame returns a consistent read of the view with presence state.
// Remote node moves applied to the session's graph since the last layout
// are overlaid on the returned copy; the view itself is only read.
func (v *Visualizer) Frame() Frame {
	v.mu.RLock()
	view := v.view
	layers := sortedLayers(v.layers)
	v.mu.RUnlock()

	return Frame{
		Frame:         view.RenderFrame().WithPins(v.source.Pins()),
		Local:         v.session.LocalUser(),
		Collaborators: v.session.Roster(),
		Status:        v.session.Status(),
		Zoom:          v.session.Viewport().Zoom(),
		Layers:        layers,
	}
}

// Session returns the underlying presence session
func (v *Visualizer) Session() *presence.Session {
	return v.session
}

// Close leaves the session
func (v *Visualizer) Close(ctx context.Context) error {
	return v.session.Close(ctx)
}

func sortedLayers(set domain.LayerSet) []domain.Layer {
	out := make([]domain.Layer, 0, len(set))
	for l, on := range set {
		if on {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
