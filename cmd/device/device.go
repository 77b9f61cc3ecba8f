package device

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/devconfig"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/paularlott/cli"
)

// Commands returns the device sub-commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		listCommand(),
		execCommand(),
		broadcastCommand(),
		configCommand(),
		setConfigCommand(),
	}
}

func connect(ctx context.Context) (*app.Lab, func(), error) {
	return app.Open(ctx, config.FromContext(ctx), app.WithoutTerminals())
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List lab devices",
		Description: "List every device in the lab with its kind, vendor and model",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			printDevices(lab.Devices())
			return nil
		},
	}
}

func execCommand() *cli.Command {
	return &cli.Command{
		Name:        "exec",
		Usage:       "Run commands on a device",
		Description: "Run one or more ';'-separated commands in a fresh terminal session and print the transcript",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "device", Required: true},
			&cli.StringArg{Name: "command", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			device := cmd.GetStringArg("device")
			for _, c := range strings.Split(cmd.GetStringArg("command"), ";") {
				out, err := lab.RunCommand(ctx, device, strings.TrimSpace(c))
				if err != nil {
					return err
				}
				if out != "" {
					fmt.Println(out)
				}
			}
			return nil
		},
	}
}

func broadcastCommand() *cli.Command {
	return &cli.Command{
		Name:        "broadcast",
		Usage:       "Run a command on several devices",
		Description: "Run one command on every device (or the given ones) concurrently and print each transcript",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "command", Required: true},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "devices", Usage: "Comma-separated devices (default all)"},
			&cli.IntFlag{Name: "workers", Usage: "Maximum concurrent devices", DefaultValue: 4},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			var devices []string
			for _, d := range strings.Split(cmd.GetString("devices"), ",") {
				if d = strings.TrimSpace(d); d != "" {
					devices = append(devices, d)
				}
			}

			failed := 0
			for _, r := range lab.Broadcast(ctx, devices, cmd.GetStringArg("command"), cmd.GetInt("workers")) {
				fmt.Printf("=== %s ===\n", r.ID)
				if r.Err != nil {
					failed++
					fmt.Printf("Error: %v\n", r.Err)
					continue
				}
				fmt.Println(r.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d devices failed", failed)
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Show a device configuration",
		Description: "Show the hostname and interface table of a device",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "device", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			v, err := lab.ReadDeviceConfig(ctx, cmd.GetStringArg("device"))
			if err != nil {
				return err
			}
			return devconfig.Format(os.Stdout, v)
		},
	}
}

func setConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "set-config",
		Usage:       "Replace a device configuration",
		Description: "Replace the interface table of a device, and optionally its hostname. Interfaces are given as NAME=IP pairs separated by commas; the IP may be empty.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "device", Required: true},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hostname", Usage: "New hostname"},
			&cli.StringFlag{Name: "interfaces", Usage: "Interfaces, e.g. Gi0/0=10.0.0.1/30,Gi0/1=", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			rows, err := ParseInterfaces(cmd.GetString("interfaces"))
			if err != nil {
				return err
			}
			var hostname *string
			if h := cmd.GetString("hostname"); h != "" {
				hostname = &h
			}

			device := cmd.GetStringArg("device")
			if err := lab.ApplyDeviceConfig(ctx, device, hostname, rows); err != nil {
				return err
			}
			fmt.Printf("Configuration saved for %s\n", device)
			return nil
		},
	}
}

// ParseInterfaces parses "NAME=IP,NAME=IP". A bare NAME has no address.
func ParseInterfaces(s string) ([]model.Interface, error) {
	var rows []model.Interface
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, ip, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("interface %q: missing name", part)
		}
		rows = append(rows, model.Interface{Name: name, IP: strings.TrimSpace(ip)})
	}
	return rows, nil
}

func printDevices(devices []model.DeviceSummary) {
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return
	}

	for _, d := range devices {
		fmt.Printf("%s\t%s\t%s\t%s\n", d.Name, d.Kind(), d.Vendor, d.Model)
	}
}
