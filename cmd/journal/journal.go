package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/paularlott/cli"
)

// Commands returns the journal sub-commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		listCommand(),
		showCommand(),
		pruneCommand(),
	}
}

func open(ctx context.Context) (*journal.Journal, error) {
	cfg := config.FromContext(ctx)
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open journal in %s: %w", cfg.DataDir, err)
	}
	return j, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List recorded saves",
		Description: "List configuration, topology and autosave records, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Filter by kind (autosave, config, topology)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of records", DefaultValue: 50},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			j, err := open(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			snaps, err := j.List(ctx, journal.Filter{
				LabID: config.FromContext(ctx).LabID,
				Kind:  journal.Kind(cmd.GetString("kind")),
				Limit: cmd.GetInt("limit"),
			})
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("No records found")
				return nil
			}
			for _, s := range snaps {
				fmt.Printf("%s\t%s\t%s\t%s\t%s\t%d\n",
					s.ID, s.CreatedAt.Local().Format(time.DateTime), s.LabID, s.Kind, s.Status, s.Size)
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show a recorded save",
		Description: "Show one record including the saved content",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			j, err := open(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			s, err := j.Get(ctx, cmd.GetStringArg("id"))
			if err != nil {
				return err
			}
			fmt.Printf("ID:      %s\n", s.ID)
			fmt.Printf("Lab:     %s\n", s.LabID)
			fmt.Printf("Kind:    %s\n", s.Kind)
			if s.Device != "" {
				fmt.Printf("Device:  %s\n", s.Device)
			}
			fmt.Printf("Status:  %s\n", s.Status)
			fmt.Printf("Created: %s\n", s.CreatedAt.Local().Format(time.DateTime))
			if s.Error != "" {
				fmt.Printf("Error:   %s\n", s.Error)
			}
			if s.Content != "" {
				fmt.Println()
				fmt.Println(s.Content)
			}
			return nil
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:        "prune",
		Usage:       "Delete old records",
		Description: "Delete records older than the given age",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Age, e.g. 72h", DefaultValue: "168h"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			age, err := time.ParseDuration(cmd.GetString("older-than"))
			if err != nil {
				return fmt.Errorf("invalid --older-than: %w", err)
			}

			j, err := open(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			n, err := j.Prune(ctx, time.Now().Add(-age))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d records\n", n)
			return nil
		},
	}
}
