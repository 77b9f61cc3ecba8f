// Package console drives a terminal session over a byte stream: a local
// tty in raw mode, an SSH channel or a plain pipe. Line editing, history
// keys and password entry are handled by x/term's Terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/session"
	"golang.org/x/term"
)

// KeySwitch moves to the next session.
const KeySwitch = '\t'

const passwordPrompt = "Password: "

// Switcher picks the next session when the user presses KeySwitch.
type Switcher func() (*session.Session, bool)

// Console is a line editor bound to one session at a time.
type Console struct {
	tty      *term.Terminal
	out      io.Writer
	sess     *session.Session
	switcher Switcher
	printed  int
}

// Option configures a Console.
type Option func(*Console)

// WithSwitcher enables tab switching with KeySwitch.
func WithSwitcher(fn Switcher) Option {
	return func(c *Console) { c.switcher = fn }
}

// New returns a console reading keys from in and drawing to out. A local
// tty must already be in raw mode.
func New(in io.Reader, out io.Writer, sess *session.Session, opts ...Option) *Console {
	c := &Console{out: out, sess: sess}
	for _, opt := range opts {
		opt(c)
	}
	c.tty = term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, prompt(sess))
	c.tty.History = sessionHistory{c}
	c.tty.AutoCompleteCallback = c.onKey
	return c
}

func prompt(s *session.Session) string {
	return s.Prompt() + " "
}

// Session is the session currently attached.
func (c *Console) Session() *session.Session { return c.sess }

// SetSize updates the terminal dimensions, e.g. after an SSH window-change.
func (c *Console) SetSize(width, height int) error {
	return c.tty.SetSize(width, height)
}

// Run reads lines until EOF, Ctrl-D on an empty line, Ctrl-C or ctx
// cancellation. Command failures are shown in the transcript and do not
// stop the loop.
func (c *Console) Run(ctx context.Context) error {
	c.flush(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			line string
			err  error
		)
		if c.sess.AwaitingPassword() {
			line, err = c.tty.ReadPassword(passwordPrompt)
		} else {
			c.tty.SetPrompt(prompt(c.sess))
			line, err = c.tty.ReadLine()
		}
		if errors.Is(err, term.ErrPasteIndicator) {
			err = nil
		}
		if errors.Is(err, io.EOF) {
			io.WriteString(c.out, "\r\n")
			return nil
		}
		if err != nil {
			return err
		}

		if err := c.sess.Handle(ctx, session.Submit{Line: line}); err != nil {
			log.Debug("Command failed", "device", c.sess.Device(), "error", err)
		}
		c.flush(true)
	}
}

// onKey intercepts KeySwitch; every other key is left to the editor.
func (c *Console) onKey(line string, pos int, key rune) (string, int, bool) {
	if key != KeySwitch {
		return "", 0, false
	}
	if c.switcher == nil {
		return line, pos, true
	}
	next, ok := c.switcher()
	if !ok || next == c.sess {
		return line, pos, true
	}

	c.sess = next
	c.printed = 0
	c.tty.SetPrompt(prompt(next))
	fmt.Fprintf(c.tty, "--- %s ---\n", next.Device())
	c.flush(false)
	return "", 0, true
}

// flush writes transcript lines not yet shown. Prompts are drawn by the
// editor, and with skipEcho the first command line is dropped because the
// editor already echoed it.
func (c *Console) flush(skipEcho bool) {
	lines := c.sess.Lines()
	for _, l := range lines[min(c.printed, len(lines)):] {
		switch l.Kind {
		case session.KindPrompt, session.KindPasswordPrompt:
			continue
		case session.KindCommand:
			if skipEcho {
				skipEcho = false
				continue
			}
		}
		io.WriteString(c.tty, l.Text+"\n")
	}
	c.printed = len(lines)
}

// sessionHistory serves the attached session's commands to the editor's
// up and down keys. Session.Submit records them, so Add does nothing.
type sessionHistory struct {
	c *Console
}

func (sessionHistory) Add(string) {}

func (h sessionHistory) Len() int {
	return len(h.c.sess.History())
}

func (h sessionHistory) At(idx int) string {
	hist := h.c.sess.History()
	return hist[len(hist)-1-idx]
}
