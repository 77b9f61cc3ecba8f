package topology

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/martinsuchenak/labconsole/internal/model"
)

// Backend loads and stores the lab graph and device interface lists.
type Backend interface {
	Topology(ctx context.Context, labID string) (*model.Topology, error)
	SaveTopology(ctx context.Context, labID string, req labclient.SaveTopologyRequest) (*labclient.Result, error)
	DeviceConfig(ctx context.Context, labID, device string) (*model.DeviceConfig, error)
}

// Actions are the view-mode node interactions handled outside the editor.
type Actions interface {
	// OpenTerminal activates the device's terminal tab, reporting whether
	// one exists.
	OpenTerminal(device string) bool
	OpenDeviceDetail(device string)
	OpenDeviceConfig(ctx context.Context, device string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

const deletePrompt = "Delete selected link?"

var (
	ErrSelectLink  = errors.New("Click on an existing link to delete it")
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownEdge = errors.New("unknown link")
	ErrNoLink      = errors.New("link editor is not open")
	ErrStale       = errors.New("link editor closed before the response arrived")
)

// Editor owns the local graph model. Renderers only ever see snapshots.
type Editor struct {
	mu       sync.Mutex
	labID    string
	backend  Backend
	renderer Renderer
	actions  Actions
	confirm  Confirmer
	metrics  *metrics.Metrics

	nodes     []model.TopologyNode
	edges     []model.TopologyEdge
	positions map[string]model.Position
	mode      Mode
	pending   []string

	link    *LinkForm
	linkGen uint64
}

// Option configures an Editor.
type Option func(*Editor)

// WithRenderer sets the view; the default is a MemoryRenderer.
func WithRenderer(r Renderer) Option {
	return func(e *Editor) { e.renderer = r }
}

// WithActions sets the handler for view-mode node clicks.
func WithActions(a Actions) Option {
	return func(e *Editor) { e.actions = a }
}

// WithConfirmer sets the delete confirmation; the default declines.
func WithConfirmer(c Confirmer) Option {
	return func(e *Editor) { e.confirm = c }
}

// WithMetrics records saves on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

// New creates an empty editor for a lab. Call Load to fetch the graph.
func New(labID string, backend Backend, opts ...Option) *Editor {
	e := &Editor{
		labID:     labID,
		backend:   backend,
		positions: make(map[string]model.Position),
		confirm:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		e.renderer = NewMemoryRenderer()
	}
	return e
}

// Renderer returns the editor's view.
func (e *Editor) Renderer() Renderer { return e.renderer }

func (e *Editor) graphLocked() Graph {
	return Graph{
		Nodes:     slices.Clone(e.nodes),
		Edges:     slices.Clone(e.edges),
		Positions: maps.Clone(e.positions),
		Mode:      e.mode,
		Pending:   slices.Clone(e.pending),
	}
}

func (e *Editor) renderLocked() {
	e.renderer.Render(e.graphLocked())
}

// Graph returns a snapshot of the model.
func (e *Editor) Graph() Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphLocked()
}

// Mode returns the current mode.
func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Pending returns the nodes selected so far in add-link mode.
func (e *Editor) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.pending)
}

// Load replaces the model with the backend's graph and renders it.
func (e *Editor) Load(ctx context.Context) error {
	topo, err := e.backend.Topology(ctx, e.labID)
	if err != nil {
		log.Warn("Failed to load topology", "lab", e.labID, "error", err)
		return fmt.Errorf("Failed to load topology: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodes = topo.Nodes
	e.edges = topo.Edges
	e.positions = topo.Positions
	if e.positions == nil {
		e.positions = make(map[string]model.Position)
	}
	e.renderLocked()
	return nil
}

func (e *Editor) hasNodeLocked(id string) bool {
	return slices.ContainsFunc(e.nodes, func(n model.TopologyNode) bool { return n.ID == id })
}

func (e *Editor) edgeIndexLocked(id string) int {
	return slices.IndexFunc(e.edges, func(ed model.TopologyEdge) bool { return ed.ID == id })
}

// EnterAddLink starts selecting two nodes for a new link.
func (e *Editor) EnterAddLink() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeAddLink
	e.pending = nil
	e.renderLocked()
}

// EnterDeleteLink arms deletion of the next clicked link.
func (e *Editor) EnterDeleteLink() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeDeleteLink
	e.pending = nil
	e.renderLocked()
}

// Cancel returns to view mode.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeView
	e.pending = nil
	e.renderLocked()
}

// ClickNode handles a single click on a node.
func (e *Editor) ClickNode(ctx context.Context, id string) error {
	e.mu.Lock()
	if !e.hasNodeLocked(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	switch e.mode {
	case ModeAddLink:
		if !slices.Contains(e.pending, id) {
			e.pending = append(e.pending, id)
		}
		if len(e.pending) < 2 {
			e.renderLocked()
			e.mu.Unlock()
			return nil
		}
		from, to := e.pending[0], e.pending[1]
		e.pending = nil
		e.mode = ModeView
		e.renderLocked()
		e.mu.Unlock()
		return e.OpenLink(ctx, from, to, "")

	case ModeDeleteLink:
		e.mu.Unlock()
		return ErrSelectLink

	default:
		actions := e.actions
		e.mu.Unlock()
		if actions != nil && !actions.OpenTerminal(id) {
			actions.OpenDeviceDetail(id)
		}
		return nil
	}
}

// ClickCanvas handles a click on empty space.
func (e *Editor) ClickCanvas() error {
	if e.Mode() == ModeDeleteLink {
		return ErrSelectLink
	}
	return nil
}

// DoubleClickNode opens the device configuration form in view mode.
func (e *Editor) DoubleClickNode(ctx context.Context, id string) error {
	e.mu.Lock()
	known := e.hasNodeLocked(id)
	mode, actions := e.mode, e.actions
	e.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if mode != ModeView || actions == nil {
		return nil
	}
	return actions.OpenDeviceConfig(ctx, id)
}

// ClickEdge handles a single click on a link. In delete mode the user is
// asked to confirm; the editor returns to view mode either way.
func (e *Editor) ClickEdge(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.mode != ModeDeleteLink {
		e.mu.Unlock()
		return nil
	}
	idx := e.edgeIndexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEdge, id)
	}
	confirm := e.confirm
	e.mu.Unlock()

	ok := confirm(deletePrompt)

	e.mu.Lock()
	e.mode = ModeView
	if ok {
		if idx = e.edgeIndexLocked(id); idx >= 0 {
			e.edges = slices.Delete(e.edges, idx, idx+1)
		}
	}
	e.renderLocked()
	e.mu.Unlock()

	if !ok {
		return nil
	}
	return e.Save(ctx)
}

// DeleteLink removes a link without asking and saves the topology.
func (e *Editor) DeleteLink(ctx context.Context, id string) error {
	e.mu.Lock()
	idx := e.edgeIndexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEdge, id)
	}
	e.edges = slices.Delete(e.edges, idx, idx+1)
	e.renderLocked()
	e.mu.Unlock()
	return e.Save(ctx)
}

// DoubleClickEdge opens the link surface pre-filled from the link.
func (e *Editor) DoubleClickEdge(ctx context.Context, id string) error {
	e.mu.Lock()
	idx := e.edgeIndexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEdge, id)
	}
	if e.mode != ModeView {
		e.mu.Unlock()
		return nil
	}
	edge := e.edges[idx]
	e.mu.Unlock()
	return e.OpenLink(ctx, edge.From, edge.To, edge.ID)
}

// AddLink selects from and to in add-link mode, opening the link surface.
func (e *Editor) AddLink(ctx context.Context, from, to string) error {
	e.EnterAddLink()
	if err := e.ClickNode(ctx, from); err != nil {
		e.Cancel()
		return err
	}
	if from == to {
		e.Cancel()
		return errors.New("a link needs two different devices")
	}
	return e.ClickNode(ctx, to)
}

// Save persists every link and the renderer's node positions, then
// reloads the graph from the backend.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	req := labclient.SaveTopologyRequest{
		Edges:     payloadEdges(e.edges),
		Positions: e.renderer.Positions(),
	}
	e.mu.Unlock()

	if err := e.store(ctx, req); err != nil {
		return fmt.Errorf("Failed to save topology: %w", err)
	}
	log.Info("Topology saved", "lab", e.labID, "links", len(req.Edges))
	return e.Load(ctx)
}

// ResetLayout fits the view and stores the link list exactly as loaded,
// with no positions.
func (e *Editor) ResetLayout(ctx context.Context) error {
	e.mu.Lock()
	e.renderer.Fit()
	e.positions = make(map[string]model.Position)
	req := labclient.SaveTopologyRequest{
		Edges:     slices.Clone(e.edges),
		Positions: map[string]model.Position{},
	}
	e.renderLocked()
	e.mu.Unlock()

	if err := e.store(ctx, req); err != nil {
		return fmt.Errorf("Reset failed: %w", err)
	}
	log.Info("Topology layout reset", "lab", e.labID)
	return nil
}

func (e *Editor) store(ctx context.Context, req labclient.SaveTopologyRequest) error {
	res, err := e.backend.SaveTopology(ctx, e.labID, req)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		e.metrics.IncTopologySave("failed")
		log.Warn("Failed to save topology", "lab", e.labID, "error", err)
		return err
	}
	e.metrics.IncTopologySave("ok")
	return nil
}

// payloadEdges strips view-local ids; the backend derives its own.
func payloadEdges(edges []model.TopologyEdge) []model.TopologyEdge {
	out := make([]model.TopologyEdge, len(edges))
	for i, ed := range edges {
		ed.ID = ""
		if ed.Cost <= 0 {
			ed.Cost = model.DefaultCost
		}
		out[i] = ed
	}
	return out
}
