package topology

import (
	"context"
	"fmt"
)

// Event is a user interaction with the editor.
type Event interface {
	editorEvent()
}

type (
	EnterAddLink      struct{}
	EnterDeleteLink   struct{}
	Cancel            struct{}
	CanvasClicked     struct{}
	NodeClicked       struct{ ID string }
	NodeDoubleClicked struct{ ID string }
	EdgeClicked       struct{ ID string }
	EdgeDoubleClicked struct{ ID string }
	LinkSaved         struct{ Input LinkInput }
	LinkClosed        struct{}
	SaveRequested     struct{}
	ResetRequested    struct{}
)

func (EnterAddLink) editorEvent()      {}
func (EnterDeleteLink) editorEvent()   {}
func (Cancel) editorEvent()            {}
func (CanvasClicked) editorEvent()     {}
func (NodeClicked) editorEvent()       {}
func (NodeDoubleClicked) editorEvent() {}
func (EdgeClicked) editorEvent()       {}
func (EdgeDoubleClicked) editorEvent() {}
func (LinkSaved) editorEvent()         {}
func (LinkClosed) editorEvent()        {}
func (SaveRequested) editorEvent()     {}
func (ResetRequested) editorEvent()    {}

// Handle dispatches ev.
func (e *Editor) Handle(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case EnterAddLink:
		e.EnterAddLink()
	case EnterDeleteLink:
		e.EnterDeleteLink()
	case Cancel:
		e.Cancel()
	case CanvasClicked:
		return e.ClickCanvas()
	case NodeClicked:
		return e.ClickNode(ctx, ev.ID)
	case NodeDoubleClicked:
		return e.DoubleClickNode(ctx, ev.ID)
	case EdgeClicked:
		return e.ClickEdge(ctx, ev.ID)
	case EdgeDoubleClicked:
		return e.DoubleClickEdge(ctx, ev.ID)
	case LinkSaved:
		return e.SaveLink(ctx, ev.Input)
	case LinkClosed:
		e.CloseLink()
	case SaveRequested:
		return e.Save(ctx)
	case ResetRequested:
		return e.ResetLayout(ctx)
	default:
		return fmt.Errorf("unsupported editor event %T", ev)
	}
	return nil
}
