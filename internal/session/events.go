package session

import (
	"context"
	"fmt"
)

// Event is an input to a Session.
type Event interface {
	sessionEvent()
}

// Submit enters a line.
type Submit struct {
	Line string
}

// HistoryPrev recalls the previous command.
type HistoryPrev struct{}

// HistoryNext recalls the next command.
type HistoryNext struct{}

// Edit replaces the pending input.
type Edit struct {
	Input string
}

func (Submit) sessionEvent()      {}
func (HistoryPrev) sessionEvent() {}
func (HistoryNext) sessionEvent() {}
func (Edit) sessionEvent()        {}

// Handle dispatches ev.
func (s *Session) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case Submit:
		return s.Submit(ctx, e.Line)
	case HistoryPrev:
		s.HistoryPrev()
	case HistoryNext:
		s.HistoryNext()
	case Edit:
		s.SetInput(e.Input)
	default:
		return fmt.Errorf("unsupported session event %T", ev)
	}
	return nil
}
