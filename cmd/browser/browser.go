package browser

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/paularlott/cli"
)

// Commands returns the browser sub-commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		browseCommand(),
		dnsCommand(),
	}
}

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:        "open",
		Usage:       "Fetch a page from a lab PC",
		Description: "Request a hostname through a PC's simulated browser and print the page",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "pc", Required: true},
			&cli.StringArg{Name: "host", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := app.Open(ctx, config.FromContext(ctx), app.WithoutTerminals())
			if err != nil {
				return err
			}
			defer done()

			b, err := lab.Browser(cmd.GetStringArg("pc"))
			if err != nil {
				return err
			}
			content, err := b.Browse(ctx, cmd.GetStringArg("host"))
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
}

func dnsCommand() *cli.Command {
	return &cli.Command{
		Name:        "add-dns",
		Usage:       "Add a DNS entry",
		Description: "Register a hostname and the page it serves in the lab's DNS",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "host", Required: true},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "response", Usage: "Page content served for the host"},
			&cli.StringFlag{Name: "pc", Usage: "PC to register from (defaults to the first PC)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := app.Open(ctx, config.FromContext(ctx), app.WithoutTerminals())
			if err != nil {
				return err
			}
			defer done()

			pc := cmd.GetString("pc")
			if pc == "" {
				if pc, err = lab.FirstPC(); err != nil {
					return err
				}
			}
			b, err := lab.Browser(pc)
			if err != nil {
				return err
			}
			msg, err := b.AddDNS(ctx, cmd.GetStringArg("host"), cmd.GetString("response"))
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}
