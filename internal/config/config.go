package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/paularlott/cli"
)

// Config holds the application configuration
type Config struct {
	ServerURL         string
	LabID             string
	SessionCookie     string
	Timeout           time.Duration
	RateLimit         float64 // requests per second, 0 disables limiting
	AutoSaveInterval  time.Duration
	DataDir           string
	ListenAddr        string
	BearerToken       string
	SSHListenAddr     string
	SSHHostKey        string
	SSHAuthorizedKeys string
}

const (
	defaultServerURL        = "http://127.0.0.1:5000"
	defaultTimeout          = 30 * time.Second
	defaultAutoSaveInterval = 30 * time.Second
	defaultDataDir          = "./data"
	defaultListenAddr       = ":8090"
	defaultSSHListenAddr    = ":2222"
)

// ErrNoLab is returned by RequireLab when no lab id is configured.
var ErrNoLab = errors.New("lab id required (--lab or LABCONSOLE_LAB)")

// Load loads configuration with the following priority (highest to lowest):
// 1. Command-line parameters (passed as opts)
// 2. Environment variables (including a .env file loaded at startup)
// 3. Default values
func Load(opts *Config) *Config {
	cfg := &Config{
		ServerURL:         coalesce(os.Getenv("LABCONSOLE_SERVER_URL"), defaultServerURL),
		LabID:             os.Getenv("LABCONSOLE_LAB"),
		SessionCookie:     os.Getenv("LABCONSOLE_SESSION_COOKIE"),
		Timeout:           envDuration("LABCONSOLE_TIMEOUT", defaultTimeout),
		RateLimit:         envFloat("LABCONSOLE_RATE_LIMIT", 0),
		AutoSaveInterval:  envDuration("LABCONSOLE_AUTOSAVE_INTERVAL", defaultAutoSaveInterval),
		DataDir:           coalesce(os.Getenv("LABCONSOLE_DATA_DIR"), defaultDataDir),
		ListenAddr:        coalesce(os.Getenv("LABCONSOLE_LISTEN_ADDR"), defaultListenAddr),
		BearerToken:       os.Getenv("LABCONSOLE_MCP_TOKEN"),
		SSHListenAddr:     coalesce(os.Getenv("LABCONSOLE_SSH_LISTEN_ADDR"), defaultSSHListenAddr),
		SSHHostKey:        os.Getenv("LABCONSOLE_SSH_HOST_KEY"),
		SSHAuthorizedKeys: os.Getenv("LABCONSOLE_SSH_AUTHORIZED_KEYS"),
	}

	if opts != nil {
		cfg.ServerURL = coalesce(opts.ServerURL, cfg.ServerURL)
		cfg.LabID = coalesce(opts.LabID, cfg.LabID)
		cfg.SessionCookie = coalesce(opts.SessionCookie, cfg.SessionCookie)
		cfg.DataDir = coalesce(opts.DataDir, cfg.DataDir)
		cfg.ListenAddr = coalesce(opts.ListenAddr, cfg.ListenAddr)
		cfg.BearerToken = coalesce(opts.BearerToken, cfg.BearerToken)
		cfg.SSHListenAddr = coalesce(opts.SSHListenAddr, cfg.SSHListenAddr)
		cfg.SSHHostKey = coalesce(opts.SSHHostKey, cfg.SSHHostKey)
		cfg.SSHAuthorizedKeys = coalesce(opts.SSHAuthorizedKeys, cfg.SSHAuthorizedKeys)
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		if opts.AutoSaveInterval > 0 {
			cfg.AutoSaveInterval = opts.AutoSaveInterval
		}
		if opts.RateLimit > 0 {
			cfg.RateLimit = opts.RateLimit
		}
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.SSHHostKey == "" {
		cfg.SSHHostKey = filepath.Join(cfg.DataDir, "ssh_host_ed25519")
	}

	return cfg
}

// Validate checks that the backend URL is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server url %q: scheme must be http or https", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", c.ServerURL)
	}
	return nil
}

// RequireLab returns ErrNoLab when no lab is selected.
func (c *Config) RequireLab() error {
	if c.LabID == "" {
		return ErrNoLab
	}
	return nil
}

// IsMCPAuthEnabled checks if MCP bearer authentication is configured
func (c *Config) IsMCPAuthEnabled() bool {
	return c.BearerToken != ""
}

// String returns a short description of the active backend target
func (c *Config) String() string {
	if c.LabID == "" {
		return c.ServerURL
	}
	return fmt.Sprintf("%s (lab %s)", c.ServerURL, c.LabID)
}

// GlobalFlags are the connection flags shared by every sub-command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:   "server-url",
			Usage:  "Lab backend base URL (default " + defaultServerURL + ")",
			Global: true,
		},
		&cli.StringFlag{
			Name:   "lab",
			Usage:  "Lab id",
			Global: true,
		},
		&cli.StringFlag{
			Name:   "session-cookie",
			Usage:  "Backend session cookie value",
			Global: true,
		},
		&cli.StringFlag{
			Name:   "timeout",
			Usage:  "Per-request timeout (e.g. 30s)",
			Global: true,
		},
		&cli.StringFlag{
			Name:   "rate-limit",
			Usage:  "Maximum backend requests per second (0 for unlimited)",
			Global: true,
		},
		&cli.StringFlag{
			Name:   "data-dir",
			Usage:  "Directory for the local journal and SSH host key",
			Global: true,
		},
	}
}

// FromCommand builds the configuration from the global flags of cmd.
func FromCommand(cmd *cli.Command) (*Config, error) {
	opts := &Config{
		ServerURL:     cmd.GetString("server-url"),
		LabID:         cmd.GetString("lab"),
		SessionCookie: cmd.GetString("session-cookie"),
		DataDir:       cmd.GetString("data-dir"),
	}
	if v := cmd.GetString("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		opts.Timeout = d
	}
	if v := cmd.GetString("rate-limit"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --rate-limit: %w", err)
		}
		opts.RateLimit = f
	}

	cfg := Load(opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type ctxKey struct{}

// WithContext stores cfg on ctx.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration stored by WithContext, or the
// environment defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}
	return Load(nil)
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn("Ignoring invalid duration", "key", key, "value", v)
		return def
	}
	return d
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Warn("Ignoring invalid number", "key", key, "value", v)
		return def
	}
	return f
}

// coalesce returns the first non-empty string value
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
