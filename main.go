package main

import (
	"context"
	"os"

	"github.com/martinsuchenak/labconsole/cmd/browser"
	"github.com/martinsuchenak/labconsole/cmd/device"
	"github.com/martinsuchenak/labconsole/cmd/gateway"
	"github.com/martinsuchenak/labconsole/cmd/journal"
	"github.com/martinsuchenak/labconsole/cmd/mockserver"
	"github.com/martinsuchenak/labconsole/cmd/server"
	"github.com/martinsuchenak/labconsole/cmd/terminal"
	"github.com/martinsuchenak/labconsole/cmd/topology"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/paularlott/cli"
	"github.com/paularlott/cli/env"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	env.Load()

	// Initialize structured logging
	log.Configure("info", "console")

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:         "log-level",
			Usage:        "Log level (trace, debug, info, warn, error)",
			DefaultValue: "info",
			EnvVars:      []string{"LABCONSOLE_LOG_LEVEL"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:         "log-format",
			Usage:        "Log format (console, json)",
			DefaultValue: "console",
			EnvVars:      []string{"LABCONSOLE_LOG_FORMAT"},
			Global:       true,
		},
	}

	rootCmd := &cli.Command{
		Name:        "labconsole",
		Version:     version,
		Usage:       "Network lab console with MCP server support",
		Description: "Terminals, device configuration, topology editing and a simulated browser for network labs, from the command line, over SSH or as MCP tools",
		Flags:       append(flags, config.GlobalFlags()...),
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			log.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"))

			cfg, err := config.FromCommand(cmd)
			if err != nil {
				return ctx, err
			}
			log.Debug("Configuration loaded", "backend", cfg.String(), "version", version, "commit", commit, "date", date)
			return config.WithContext(ctx, cfg), nil
		},
		Commands: []*cli.Command{
			terminal.Command(),
			server.Command(version),
			gateway.Command(),
			mockserver.Command(),
			{
				Name:        "device",
				Usage:       "Device commands",
				Description: "List devices, run commands and edit device configuration",
				Commands:    device.Commands(),
			},
			{
				Name:        "topology",
				Usage:       "Topology commands",
				Description: "Show and edit the lab's links and layout",
				Commands:    topology.Commands(),
			},
			{
				Name:        "browser",
				Usage:       "Simulated browser commands",
				Description: "Browse pages from lab PCs and manage lab DNS entries",
				Commands:    browser.Commands(),
			},
			{
				Name:        "journal",
				Usage:       "Local save journal commands",
				Description: "Inspect and prune the local record of saves",
				Commands:    journal.Commands(),
			},
		},
	}

	if err := rootCmd.Execute(context.Background()); err != nil {
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
