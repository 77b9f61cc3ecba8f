package terminal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/console"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/session"
	"github.com/mattn/go-isatty"
	"github.com/paularlott/cli"
	"golang.org/x/term"
)

// Command opens an interactive terminal on the lab's devices.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "terminal",
		Usage:       "Open an interactive device terminal",
		Description: "Open a terminal tab per device and attach to one of them. Tab switches to the next tab, Ctrl-D on an empty line exits.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "device"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-autosave",
				Usage: "Disable periodic progress saves",
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.FromContext(ctx)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			lab, done, err := app.Open(ctx, cfg, app.WithDetailHandler(printDetail))
			if err != nil {
				return err
			}
			defer done()

			tab, err := attach(lab, cmd.GetStringArg("device"))
			if err != nil {
				return err
			}

			if !cmd.GetBool("no-autosave") {
				if err := lab.Autosave().Start(); err != nil {
					log.Warn("Autosave disabled", "error", err)
				}
			}

			consoleOpts := []console.Option{console.WithSwitcher(func() (*session.Session, bool) {
				next, ok := lab.NextTab()
				if !ok {
					return nil, false
				}
				return next.Session, true
			})}

			nl := "\n"
			fd := os.Stdin.Fd()
			if isatty.IsTerminal(fd) {
				state, err := term.MakeRaw(int(fd))
				if err != nil {
					return fmt.Errorf("enable raw mode: %w", err)
				}
				defer term.Restore(int(fd), state)
				nl = "\r\n"
			}

			fmt.Fprintf(os.Stdout, "--- %s ---%s", tab.Device, nl)
			return console.New(os.Stdin, os.Stdout, tab.Session, consoleOpts...).Run(ctx)
		},
	}
}

// attach activates the tab for device, or the first tab when device is
// empty.
func attach(lab *app.Lab, device string) (*app.Tab, error) {
	if device == "" {
		tab, ok := lab.Active()
		if !ok {
			return nil, fmt.Errorf("lab %s has no terminal devices", lab.ID())
		}
		return tab, nil
	}
	tab, ok := lab.Terminal(device)
	if !ok {
		return nil, fmt.Errorf("%w: %s", app.ErrUnknownDevice, device)
	}
	if err := lab.Activate(tab.ID); err != nil {
		return nil, err
	}
	return tab, nil
}

func printDetail(d model.DeviceSummary) {
	fmt.Printf("%s: %s %s %s\r\n", d.Name, d.Type, d.Vendor, d.Model)
}
