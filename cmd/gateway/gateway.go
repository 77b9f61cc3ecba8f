package gateway

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/gateway"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/paularlott/cli"
)

// Command serves device terminals over SSH.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "ssh-gateway",
		Usage:       "Serve device terminals over SSH",
		Description: "Accept SSH connections and attach each one to a terminal on the device named by the SSH user, e.g. ssh -p 2222 R1@localhost",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ssh-listen-addr",
				Usage:   "SSH listen address (default :2222)",
				EnvVars: []string{"LABCONSOLE_SSH_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "host-key",
				Usage:   "Host key path, generated when missing (default <data-dir>/ssh_host_ed25519)",
				EnvVars: []string{"LABCONSOLE_SSH_HOST_KEY"},
			},
			&cli.StringFlag{
				Name:    "authorized-keys",
				Usage:   "authorized_keys file listing the keys allowed to connect",
				EnvVars: []string{"LABCONSOLE_SSH_AUTHORIZED_KEYS"},
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.FromContext(ctx)
			if v := cmd.GetString("ssh-listen-addr"); v != "" {
				cfg.SSHListenAddr = v
			}
			if v := cmd.GetString("host-key"); v != "" {
				cfg.SSHHostKey = v
			}
			if v := cmd.GetString("authorized-keys"); v != "" {
				cfg.SSHAuthorizedKeys = v
			}
			if cfg.SSHAuthorizedKeys == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return errors.New("--authorized-keys is required")
				}
				cfg.SSHAuthorizedKeys = filepath.Join(home, ".ssh", "authorized_keys")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			lab, done, err := app.Open(ctx, cfg, app.WithoutTerminals())
			if err != nil {
				return err
			}
			defer done()

			srv, err := gateway.New(gateway.Config{
				ListenAddr:     cfg.SSHListenAddr,
				HostKeyPath:    cfg.SSHHostKey,
				AuthorizedKeys: cfg.SSHAuthorizedKeys,
			}, lab)
			if err != nil {
				return err
			}

			if err := lab.Autosave().Start(); err != nil {
				log.Warn("Autosave disabled", "error", err)
			}

			err = srv.ListenAndServe(ctx)
			log.Info("SSH gateway stopped")
			return err
		},
	}
}
