package topology

import (
	"context"
	"fmt"
	"os"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/topology"
	"github.com/paularlott/cli"
)

// Commands returns the topology sub-commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		showCommand(),
		{
			Name:        "link",
			Usage:       "Link management commands",
			Description: "Add, edit and delete links between lab devices",
			Commands: []*cli.Command{
				linkAddCommand(),
				linkEditCommand(),
				linkDeleteCommand(),
			},
		},
		resetLayoutCommand(),
		saveCommand(),
		exportCommand(),
		importCommand(),
	}
}

func connect(ctx context.Context) (*app.Lab, func(), error) {
	return app.Open(ctx, config.FromContext(ctx), app.WithoutTerminals())
}

func linkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "label", Usage: "Link label"},
		&cli.StringFlag{Name: "cost", Usage: "Link cost (positive integer, default 1)"},
		&cli.StringFlag{Name: "src-if", Usage: "Interface on the first device"},
		&cli.StringFlag{Name: "dst-if", Usage: "Interface on the second device"},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show the lab topology",
		Description: "List the nodes, links and saved positions of the lab",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			return topology.Format(os.Stdout, lab.Topology().Graph())
		},
	}
}

func linkAddCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add a link",
		Description: "Add a link between two devices and save the topology",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "from", Required: true},
			&cli.StringArg{Name: "to", Required: true},
		},
		Flags: linkFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			ed := lab.Topology()
			if err := ed.AddLink(ctx, cmd.GetStringArg("from"), cmd.GetStringArg("to")); err != nil {
				return err
			}
			form, ok := ed.Link()
			if !ok {
				return topology.ErrNoLink
			}
			if err := ed.SaveLink(ctx, applyFlags(cmd, form.Input())); err != nil {
				ed.CloseLink()
				return err
			}
			fmt.Printf("Link %s <-> %s added\n", form.From, form.To)
			return nil
		},
	}
}

func linkEditCommand() *cli.Command {
	return &cli.Command{
		Name:        "edit",
		Usage:       "Edit a link",
		Description: "Change the label, cost or interfaces of an existing link. Flags that are not given keep their current value.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: linkFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			ed := lab.Topology()
			if err := ed.DoubleClickEdge(ctx, cmd.GetStringArg("id")); err != nil {
				return err
			}
			form, ok := ed.Link()
			if !ok {
				return topology.ErrNoLink
			}
			if err := ed.SaveLink(ctx, applyFlags(cmd, form.Input())); err != nil {
				ed.CloseLink()
				return err
			}
			fmt.Printf("Link %s updated\n", form.EdgeID)
			return nil
		},
	}
}

// applyFlags overrides in with every link flag given on the command line.
func applyFlags(cmd *cli.Command, in topology.LinkInput) topology.LinkInput {
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"label", &in.Label},
		{"cost", &in.Cost},
		{"src-if", &in.SrcIf},
		{"dst-if", &in.DstIf},
	} {
		if v := cmd.GetString(f.name); v != "" {
			*f.dst = v
		}
	}
	return in
}

func linkDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:        "delete",
		Usage:       "Delete a link",
		Description: "Delete a link by id and save the topology",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			id := cmd.GetStringArg("id")
			if err := lab.Topology().DeleteLink(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Link %s deleted\n", id)
			return nil
		},
	}
}

func resetLayoutCommand() *cli.Command {
	return &cli.Command{
		Name:        "reset-layout",
		Usage:       "Reset node positions",
		Description: "Discard saved node positions so the layout is recomputed",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			if err := lab.Topology().ResetLayout(ctx); err != nil {
				return err
			}
			fmt.Println("Layout reset")
			return nil
		},
	}
}

func saveCommand() *cli.Command {
	return &cli.Command{
		Name:        "save",
		Usage:       "Save the topology",
		Description: "Store the current links and positions back to the backend",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			if err := lab.SaveTopology(ctx); err != nil {
				return err
			}
			fmt.Println("Topology saved")
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:        "export",
		Usage:       "Export the topology as YAML",
		Description: "Write the lab's links and positions as YAML to stdout or a file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Output file (default stdout)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			path := cmd.GetString("file")
			if path == "" {
				return lab.Topology().Export(os.Stdout)
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := lab.Topology().Export(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:        "import",
		Usage:       "Import a YAML topology",
		Description: "Replace the lab's links (and positions, when present) with a YAML document and save",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			lab, done, err := connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			f, err := os.Open(cmd.GetStringArg("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			if err := lab.Topology().Import(ctx, f); err != nil {
				return err
			}
			fmt.Println("Topology imported")
			return nil
		},
	}
}
