package topology

import (
	"context"
	"fmt"
	"io"
	"maps"

	"github.com/martinsuchenak/labconsole/internal/model"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a lab's links and layout.
type Document struct {
	Lab       string                    `yaml:"lab"`
	Links     []model.TopologyEdge      `yaml:"links"`
	Positions map[string]model.Position `yaml:"positions,omitempty"`
}

// Export writes the current links and node positions as YAML.
func (e *Editor) Export(w io.Writer) error {
	e.mu.Lock()
	doc := Document{
		Lab:       e.labID,
		Links:     payloadEdges(e.edges),
		Positions: e.renderer.Positions(),
	}
	e.mu.Unlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}
	return enc.Close()
}

// Import replaces the links (and positions, when present) with the YAML
// document read from r and saves the topology. Links must join known nodes.
func (e *Editor) Import(ctx context.Context, r io.Reader) error {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode topology: %w", err)
	}

	e.mu.Lock()
	for i, l := range doc.Links {
		if !e.hasNodeLocked(l.From) || !e.hasNodeLocked(l.To) {
			e.mu.Unlock()
			return fmt.Errorf("link %d: %w: %s-%s", i, ErrUnknownNode, l.From, l.To)
		}
	}
	edges := make([]model.TopologyEdge, len(doc.Links))
	for i, l := range doc.Links {
		l.ID = ""
		l.Normalize(i)
		edges[i] = l
	}
	e.edges = edges
	if len(doc.Positions) > 0 {
		e.positions = maps.Clone(doc.Positions)
	}
	e.renderLocked()
	e.mu.Unlock()

	return e.Save(ctx)
}
