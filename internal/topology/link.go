package topology

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/validate"
	"golang.org/x/sync/errgroup"
)

// InterfaceChoice is a selectable endpoint interface.
type InterfaceChoice struct {
	Name  string
	IP    string
	IPErr error
}

// Label is the display text, e.g. "Gi0/0 (10.0.0.1/30)".
func (c InterfaceChoice) Label() string {
	if c.IP == "" {
		return c.Name
	}
	return c.Name + " (" + c.IP + ")"
}

// LinkForm is the link configuration surface. EdgeID is empty for a new link.
type LinkForm struct {
	EdgeID     string
	From       string
	To         string
	Label      string
	Cost       string
	SrcIf      string
	DstIf      string
	SrcChoices []InterfaceChoice
	DstChoices []InterfaceChoice
}

// LinkInput is what the user submits from the link surface.
type LinkInput struct {
	Label string
	Cost  string
	SrcIf string
	DstIf string
}

// Input returns the form's current values as a LinkInput.
func (f LinkForm) Input() LinkInput {
	return LinkInput{Label: f.Label, Cost: f.Cost, SrcIf: f.SrcIf, DstIf: f.DstIf}
}

func choices(ifaces []model.Interface) []InterfaceChoice {
	out := make([]InterfaceChoice, 0, len(ifaces))
	for _, it := range ifaces {
		out = append(out, InterfaceChoice{Name: it.Name, IP: it.IP, IPErr: validate.IP(it.IP)})
	}
	return out
}

func hasChoice(cs []InterfaceChoice, name string) bool {
	return slices.ContainsFunc(cs, func(c InterfaceChoice) bool { return c.Name == name })
}

// OpenLink fetches both endpoints' interfaces concurrently and shows the
// link surface. When edgeID names an existing link its values are
// pre-filled. A fetch failure leaves the surface closed.
func (e *Editor) OpenLink(ctx context.Context, from, to, edgeID string) error {
	e.mu.Lock()
	e.linkGen++
	gen := e.linkGen
	e.link = nil
	form := &LinkForm{From: from, To: to, Cost: strconv.Itoa(model.DefaultCost)}
	var existing *model.TopologyEdge
	if edgeID != "" {
		idx := e.edgeIndexLocked(edgeID)
		if idx < 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
		}
		ed := e.edges[idx]
		existing = &ed
		form.EdgeID = ed.ID
		form.Label = ed.Label
		form.Cost = strconv.Itoa(ed.Cost)
	}
	e.mu.Unlock()

	var src, dst *model.DeviceConfig
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg, err := e.backend.DeviceConfig(gctx, e.labID, from)
		src = cfg
		return err
	})
	g.Go(func() error {
		cfg, err := e.backend.DeviceConfig(gctx, e.labID, to)
		dst = cfg
		return err
	})
	err := g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.linkGen {
		return ErrStale
	}
	if err != nil {
		return fmt.Errorf("Failed to fetch device interfaces: %w", err)
	}

	form.SrcChoices = choices(src.Interfaces)
	form.DstChoices = choices(dst.Interfaces)
	if existing != nil {
		if name := model.Deref(existing.SrcIf); hasChoice(form.SrcChoices, name) {
			form.SrcIf = name
		}
		if name := model.Deref(existing.DstIf); hasChoice(form.DstChoices, name) {
			form.DstIf = name
		}
	}
	e.link = form
	return nil
}

// Link returns the open link surface.
func (e *Editor) Link() (LinkForm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return LinkForm{}, false
	}
	f := *e.link
	f.SrcChoices = slices.Clone(f.SrcChoices)
	f.DstChoices = slices.Clone(f.DstChoices)
	return f, true
}

// CloseLink dismisses the link surface; late fetches for it are ignored.
func (e *Editor) CloseLink() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkGen++
	e.link = nil
}

// ParseCost converts user input to a link cost. Anything that is not a
// positive integer becomes the default cost.
func ParseCost(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return model.DefaultCost
	}
	return n
}

// SaveLink applies in to the open surface's link, adding it or updating
// the existing one, closes the surface and saves the whole topology.
func (e *Editor) SaveLink(ctx context.Context, in LinkInput) error {
	e.mu.Lock()
	if e.link == nil {
		e.mu.Unlock()
		return ErrNoLink
	}
	f := e.link
	for _, sel := range []struct {
		name    string
		choices []InterfaceChoice
		end     string
	}{{in.SrcIf, f.SrcChoices, f.From}, {in.DstIf, f.DstChoices, f.To}} {
		if sel.name != "" && !hasChoice(sel.choices, sel.name) {
			e.mu.Unlock()
			return fmt.Errorf("%s has no interface %q", sel.end, sel.name)
		}
	}

	edge := model.TopologyEdge{
		ID:    f.EdgeID,
		From:  f.From,
		To:    f.To,
		Label: strings.TrimSpace(in.Label),
		Cost:  ParseCost(in.Cost),
		SrcIf: model.StringPtr(in.SrcIf),
		DstIf: model.StringPtr(in.DstIf),
	}
	if idx := e.edgeIndexLocked(edge.ID); edge.ID != "" && idx >= 0 {
		e.edges[idx] = edge
	} else {
		edge.ID = "link-" + uuid.NewString()
		e.edges = append(e.edges, edge)
	}
	e.link = nil
	e.linkGen++
	e.renderLocked()
	e.mu.Unlock()

	return e.Save(ctx)
}
