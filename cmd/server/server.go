package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/mcp"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/paularlott/cli"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds what RunServer needs
type ServerConfig struct {
	Config    *config.Config
	Lab       *app.Lab
	MCPServer *mcp.Server
	Metrics   *metrics.Metrics
}

// Routes builds the HTTP handler: MCP tools, metrics and a health check.
func Routes(cfg *ServerConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", cfg.MCPServer.HandleRequest)
	mux.Handle("GET /metrics", cfg.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	return SecurityHeadersMiddleware(mux)
}

// RunServer serves until ctx is cancelled or SIGINT/SIGTERM arrives.
func RunServer(ctx context.Context, cfg *ServerConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Config.ListenAddr,
		Handler:           Routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Graceful shutdown failed", "error", err)
			server.Close()
		}
	}()

	log.Info("Starting labconsole server", "addr", cfg.Config.ListenAddr, "backend", cfg.Config.String())
	log.Info("MCP available", "url", "http://localhost"+cfg.Config.ListenAddr+"/mcp")
	log.Info("Metrics available", "url", "http://localhost"+cfg.Config.ListenAddr+"/metrics")
	cfg.MCPServer.LogStartup()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server error", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}

func Command(version string) *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Start the MCP server",
		Description: "Load the lab and expose its terminals, configuration, topology and browser as MCP tools over HTTP, with Prometheus metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-addr",
				Usage:   "HTTP listen address (default :8090)",
				EnvVars: []string{"LABCONSOLE_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "mcp-token",
				Usage:   "Bearer token required on /mcp",
				EnvVars: []string{"LABCONSOLE_MCP_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "no-autosave",
				Usage: "Disable periodic progress saves",
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.FromContext(ctx)
			if v := cmd.GetString("listen-addr"); v != "" {
				cfg.ListenAddr = v
			}
			if v := cmd.GetString("mcp-token"); v != "" {
				cfg.BearerToken = v
			}
			log.Info("Configuration loaded", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr, "backend", cfg.ServerURL)

			m := metrics.New()
			lab, done, err := app.Open(ctx, cfg, app.WithMetrics(m), app.WithoutTerminals())
			if err != nil {
				log.Error("Failed to load lab", "error", err)
				return err
			}
			defer done()

			if !cmd.GetBool("no-autosave") {
				if err := lab.Autosave().Start(); err != nil {
					log.Warn("Autosave disabled", "error", err)
				} else {
					defer func() {
						log.Info("Stopping autosave...")
						lab.Autosave().Stop()
					}()
				}
			}

			return RunServer(ctx, &ServerConfig{
				Config:    cfg,
				Lab:       lab,
				MCPServer: mcp.NewServer(lab, version, cfg.BearerToken),
				Metrics:   m,
			})
		},
	}
}
