// Package session implements the per-device terminal: privileged-mode
// tracking, enable password entry, command history and the transcript.
package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/metrics"
)

// Backend executes commands on a lab device.
type Backend interface {
	Command(ctx context.Context, labID, device string, req labclient.CommandRequest) (*labclient.CommandResponse, error)
}

// LineKind classifies transcript lines for rendering.
type LineKind string

const (
	KindPrompt         LineKind = "prompt"
	KindCommand        LineKind = "command"
	KindOutput         LineKind = "output"
	KindError          LineKind = "error"
	KindPasswordPrompt LineKind = "password"
)

// Line is one transcript entry.
type Line struct {
	Kind LineKind
	Text string
}

const (
	enableCommand   = "enable"
	passwordLabel   = "Password:"
	maskRune        = "*"
	transportFailed = "Error: Could not execute command"
)

// Session is one terminal tab. All methods are safe for concurrent use;
// requests are sent without holding the lock, so overlapping submissions
// may complete in any order.
type Session struct {
	mu sync.Mutex

	labID   string
	device  string
	backend Backend
	metrics *metrics.Metrics

	authenticated    bool
	awaitingPassword bool
	history          []string
	cursor           int
	input            string
	lines            []Line

	listeners map[int]func(Line)
	nextSubID int
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records submissions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates an unauthenticated session whose transcript starts with a prompt.
func New(labID, device string, backend Backend, opts ...Option) *Session {
	s := &Session{
		labID:     labID,
		device:    device,
		backend:   backend,
		listeners: make(map[int]func(Line)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = append(s.lines, Line{Kind: KindPrompt, Text: s.promptLocked()})
	return s
}

// Device returns the device name.
func (s *Session) Device() string { return s.device }

// LabID returns the lab the device belongs to.
func (s *Session) LabID() string { return s.labID }

func (s *Session) promptLocked() string {
	if s.authenticated {
		return s.device + "#"
	}
	return s.device + ">"
}

// Prompt is "<device>#" when privileged and "<device>>" otherwise.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptLocked()
}

// Authenticated reports whether the device is in privileged mode.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// AwaitingPassword reports whether the next submission is an enable
// password. Input must be masked while this is true.
func (s *Session) AwaitingPassword() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingPassword
}

// Input returns the pending input line.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the pending input line.
func (s *Session) SetInput(v string) {
	s.mu.Lock()
	s.input = v
	s.mu.Unlock()
}

// History returns a copy of the submitted commands, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Cursor returns the history cursor, in [0, len(history)].
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Lines returns a copy of the transcript.
func (s *Session) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

// Transcript renders the transcript as plain text, one line per entry.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(s.lines))
	for i, l := range s.lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

// Subscribe registers fn to be called for every appended line. fn runs with
// the session locked and must not call back into the session.
func (s *Session) Subscribe(fn func(Line)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) appendLocked(kind LineKind, text string) {
	l := Line{Kind: kind, Text: text}
	s.lines = append(s.lines, l)
	for _, fn := range s.listeners {
		fn(l)
	}
}

// Submit sends line to the device. While a password is awaited the line is
// sent as the enable password, masked in the transcript and kept out of
// history. An empty command only re-prompts.
//
// Transport failures are reported in the transcript and also returned.
func (s *Session) Submit(ctx context.Context, line string) error {
	s.mu.Lock()
	var req labclient.CommandRequest
	if s.awaitingPassword {
		req = labclient.CommandRequest{Command: enableCommand, Password: line}
		s.appendLocked(KindCommand, "Password: "+strings.Repeat(maskRune, utf8.RuneCountInString(line)))
	} else {
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			s.input = ""
			s.appendLocked(KindPrompt, s.promptLocked())
			s.mu.Unlock()
			return nil
		}
		s.history = append(s.history, cmd)
		s.cursor = len(s.history)
		s.appendLocked(KindCommand, s.promptLocked()+" "+cmd)
		req = labclient.CommandRequest{Command: cmd}
	}
	s.input = ""
	s.mu.Unlock()

	resp, err := s.backend.Command(ctx, s.labID, s.device, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Warn("Command failed", "lab", s.labID, "device", s.device, "error", err)
		s.metrics.IncCommand("error")
		s.awaitingPassword = false
		s.appendLocked(KindError, transportFailed)
		s.appendLocked(KindPrompt, s.promptLocked())
		return fmt.Errorf("command on %s: %w", s.device, err)
	}
	s.applyLocked(resp)
	return nil
}

func (s *Session) applyLocked(resp *labclient.CommandResponse) {
	if resp.Authenticated != nil {
		s.authenticated = *resp.Authenticated
	}

	if resp.RequiresPassword {
		s.metrics.IncCommand("password")
		s.awaitingPassword = true
		s.appendLocked(KindPasswordPrompt, passwordLabel)
		return
	}

	s.awaitingPassword = false
	if resp.Success {
		s.metrics.IncCommand("ok")
	} else {
		s.metrics.IncCommand("rejected")
	}
	if resp.Output != "" {
		kind := KindOutput
		if !resp.Success {
			kind = KindError
		}
		s.appendLocked(kind, resp.Output)
	}
	s.appendLocked(KindPrompt, s.promptLocked())
}

// HistoryPrev moves to the previous command and returns the new input.
// It does nothing while a password is awaited.
func (s *Session) HistoryPrev() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingPassword {
		return s.input
	}
	if s.cursor > 0 {
		s.cursor--
		s.input = s.history[s.cursor]
	}
	return s.input
}

// HistoryNext moves to the next command, or past the end to an empty
// input, and returns the new input. It does nothing while a password is
// awaited.
func (s *Session) HistoryNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingPassword {
		return s.input
	}
	if s.cursor < len(s.history)-1 {
		s.cursor++
		s.input = s.history[s.cursor]
	} else {
		s.cursor = len(s.history)
		s.input = ""
	}
	return s.input
}
