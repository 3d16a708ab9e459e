package presence

import (
	"math"
	"sync"
)

const (
	MinZoom     = 0.5
	MaxZoom     = 2.5
	ZoomStep    = 0.2
	DefaultZoom = 1.0
)

// ClampZoom bounds a zoom level to [MinZoom, MaxZoom] and rounds it to one
// decimal so repeated steps do not drift
func ClampZoom(level float64) float64 {
	if math.IsNaN(level) {
		return DefaultZoom
	}
	level = math.Max(MinZoom, math.Min(MaxZoom, level))
	return math.Round(level*10) / 10
}

// Viewport holds the local zoom level
type Viewport struct {
	mu   sync.RWMutex
	zoom float64
}

func NewViewport() *Viewport {
	return &Viewport{zoom: DefaultZoom}
}

func (v *Viewport) Zoom() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}

// Set stores the clamped level and returns it
func (v *Viewport) Set(level float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = ClampZoom(level)
	return v.zoom
}

func (v *Viewport) ZoomIn() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = ClampZoom(v.zoom + ZoomStep)
	return v.zoom
}

func (v *Viewport) ZoomOut() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = ClampZoom(v.zoom - ZoomStep)
	return v.zoom
}

func (v *Viewport) Reset() float64 {
	return v.Set(DefaultZoom)
}
