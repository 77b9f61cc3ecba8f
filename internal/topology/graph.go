// Package topology is the lab graph editor: selection modes, link creation
// and deletion, the link configuration surface and layout persistence.
package topology

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/model"
)

// Mode is the editor's interaction mode.
type Mode int

const (
	ModeView Mode = iota
	ModeAddLink
	ModeDeleteLink
)

func (m Mode) String() string {
	switch m {
	case ModeAddLink:
		return "add-link"
	case ModeDeleteLink:
		return "delete-link"
	default:
		return "view"
	}
}

// Graph is everything a renderer needs to draw the editor.
type Graph struct {
	Nodes     []model.TopologyNode
	Edges     []model.TopologyEdge
	Positions map[string]model.Position
	Mode      Mode
	Pending   []string
}

// Renderer draws graphs. It holds no editor state beyond node placement.
type Renderer interface {
	Render(g Graph)
	// Positions returns the current coordinates of placed nodes.
	Positions() map[string]model.Position
	// Fit re-centres the view and forgets manual placement.
	Fit()
}

// MemoryRenderer is a headless Renderer that remembers positions and the
// last rendered graph.
type MemoryRenderer struct {
	mu        sync.Mutex
	last      Graph
	positions map[string]model.Position
	renders   int
	fits      int
}

// NewMemoryRenderer returns an empty renderer.
func NewMemoryRenderer() *MemoryRenderer {
	return &MemoryRenderer{positions: make(map[string]model.Position)}
}

func (r *MemoryRenderer) Render(g Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = g
	r.renders++
	for id, p := range g.Positions {
		r.positions[id] = p
	}
}

func (r *MemoryRenderer) Positions() map[string]model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.positions)
}

func (r *MemoryRenderer) Fit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = make(map[string]model.Position)
	r.fits++
}

// Move places a node, as a user dragging it would.
func (r *MemoryRenderer) Move(id string, p model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[id] = p
}

// Last returns the most recently rendered graph.
func (r *MemoryRenderer) Last() Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Renders returns how many times Render was called.
func (r *MemoryRenderer) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Fits returns how many times Fit was called.
func (r *MemoryRenderer) Fits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fits
}

// Format writes a plain-text listing of g.
func Format(w io.Writer, g Graph) error {
	if _, err := fmt.Fprintf(w, "Nodes (%d):\n", len(g.Nodes)); err != nil {
		return err
	}
	for _, n := range g.Nodes {
		pos := ""
		if p, ok := g.Positions[n.ID]; ok {
			pos = fmt.Sprintf("  @ %.0f,%.0f", p.X, p.Y)
		}
		fmt.Fprintf(w, "  %-12s %-8s %s%s\n", n.ID, n.Group, n.Title, pos)
	}

	fmt.Fprintf(w, "Links (%d):\n", len(g.Edges))
	edges := slices.Clone(g.Edges)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
	for _, e := range edges {
		ends := fmt.Sprintf("%s %s <-> %s %s", e.From, model.Deref(e.SrcIf), e.To, model.Deref(e.DstIf))
		label := ""
		if e.Label != "" {
			label = " \"" + e.Label + "\""
		}
		fmt.Fprintf(w, "  [%s] %s cost %d%s\n", e.ID, ends, e.Cost, label)
	}
	if g.Mode != ModeView {
		fmt.Fprintf(w, "Mode: %s %v\n", g.Mode, g.Pending)
	}
	return nil
}
