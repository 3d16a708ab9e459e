package graph

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a graph document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is the on-disk / over-the-wire shape of a graph
type Document struct {
	Nodes []NodeSpec `json:"nodes" yaml:"nodes" validate:"required,dive"`
	Links []LinkSpec `json:"links" yaml:"links" validate:"dive"`
}

// NodeSpec describes one node in a Document
type NodeSpec struct {
	ID     string   `json:"id" yaml:"id" validate:"required,max=256"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=entity process service interface external"`
	Layer  string   `json:"layer,omitempty" yaml:"layer,omitempty" validate:"omitempty,oneof=semantic kinetic dynamic"`
	Radius float64  `json:"radius,omitempty" yaml:"radius,omitempty" validate:"gte=0"`
	X      *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y      *float64 `json:"y,omitempty" yaml:"y,omitempty"`
}

// LinkSpec describes one link in a Document
type LinkSpec struct {
	Source   string  `json:"source" yaml:"source" validate:"required"`
	Target   string  `json:"target" yaml:"target" validate:"required"`
	Type     string  `json:"type,omitempty" yaml:"type,omitempty"`
	Strength float64 `json:"strength,omitempty" yaml:"strength,omitempty" validate:"gte=0,lte=1"`
}

var validate = validator.New()

// FormatFromPath picks the document format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported graph file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads a graph document from disk and builds the graph
func LoadFile(path string) (*Graph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	return Load(f, format)
}

// Load decodes a graph document and builds the graph
func Load(r io.Reader, format Format) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read graph document: %w", err)
	}

	var doc Document
	switch format {
	case FormatJSON:
		if err := sonic.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json graph: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml graph: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported graph format %q", format)
	}

	return FromDocument(doc)
}

// FromDocument validates a decoded document and builds the graph
func FromDocument(doc Document) (*Graph, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid graph document: %w", err)
	}

	nodes := make([]domain.GraphNode, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		node := domain.GraphNode{
			ID:     n.ID,
			Label:  n.Label,
			Type:   domain.NodeType(n.Type),
			Layer:  domain.Layer(n.Layer),
			Radius: n.Radius,
		}
		if n.X != nil && n.Y != nil {
			node.Position = domain.Point{X: *n.X, Y: *n.Y}
		}
		nodes = append(nodes, node)
	}

	links := make([]domain.GraphLink, 0, len(doc.Links))
	for _, l := range doc.Links {
		links = append(links, domain.GraphLink{
			Source:   l.Source,
			Target:   l.Target,
			Type:     l.Type,
			Strength: l.Strength,
		})
	}

	return New(nodes, links)
}
