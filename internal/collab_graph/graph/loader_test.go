package graph

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nanValue() float64 { return math.NaN() }

const yamlGraph = `
nodes:
  - id: catalog
    label: Catalog
    layer: semantic
    type: entity
  - id: pricing
    layer: kinetic
    type: process
    x: 120
    y: 140
links:
  - source: pricing
    target: catalog
    type: reads
    strength: 0.4
`

func TestLoad_YAML(t *testing.T) {
	g, err := Load(strings.NewReader(yamlGraph), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	n, ok := g.Node("pricing")
	require.True(t, ok)
	assert.Equal(t, domain.LayerKinetic, n.Layer)
	assert.Equal(t, domain.Point{X: 120, Y: 140}, n.Position)
	assert.Equal(t, 0.4, g.Links()[0].Strength)
}

func TestLoad_JSON(t *testing.T) {
	doc := `{"nodes":[{"id":"a","layer":"dynamic"},{"id":"b"}],"links":[{"source":"a","target":"b"}]}`

	g, err := Load(strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, g.LinkCount())
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("unknown layer", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"nodes":[{"id":"a","layer":"astral"}]}`), FormatJSON)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid graph document")
	})

	t.Run("missing nodes", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"links":[]}`), FormatJSON)
		require.Error(t, err)
	})

	t.Run("dangling link surfaces integrity error", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"nodes":[{"id":"a"}],"links":[{"source":"a","target":"z"}]}`), FormatJSON)
		var integrity *domain.GraphIntegrityError
		require.ErrorAs(t, err, &integrity)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"nodes":`), FormatJSON)
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlGraph), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	_, err = LoadFile(filepath.Join(dir, "graph.txt"))
	require.Error(t, err)
}
