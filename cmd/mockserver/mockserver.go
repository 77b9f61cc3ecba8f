package mockserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/paularlott/cli"
)

// Command runs the in-memory lab backend used for demos and tests.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "mock-backend",
		Usage:       "Run an in-memory lab backend",
		Description: "Serve the lab backend API from memory with a demo lab (two routers, a switch and a PC)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:         "listen-addr",
				Usage:        "HTTP listen address",
				DefaultValue: "127.0.0.1:5000",
			},
			&cli.StringFlag{
				Name:         "lab-id",
				Usage:        "Id of the demo lab",
				DefaultValue: "1",
			},
			&cli.StringFlag{
				Name:    "session-token",
				Usage:   "Require a session cookie with this value on API routes",
				EnvVars: []string{"LABCONSOLE_MOCK_SESSION_TOKEN"},
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := labtest.NewBackend()
			b.DemoLab(cmd.GetString("lab-id"))

			addr := cmd.GetString("listen-addr")
			server := &http.Server{
				Addr:              addr,
				Handler:           b.Mux(cmd.GetString("session-token")),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				server.Shutdown(shutdownCtx)
			}()

			log.Info("Mock lab backend listening", "addr", addr, "lab", cmd.GetString("lab-id"))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
