package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LABCONSOLE_SERVER_URL", "LABCONSOLE_LAB", "LABCONSOLE_SESSION_COOKIE",
		"LABCONSOLE_TIMEOUT", "LABCONSOLE_RATE_LIMIT", "LABCONSOLE_AUTOSAVE_INTERVAL",
		"LABCONSOLE_DATA_DIR", "LABCONSOLE_LISTEN_ADDR", "LABCONSOLE_MCP_TOKEN",
		"LABCONSOLE_SSH_LISTEN_ADDR", "LABCONSOLE_SSH_HOST_KEY", "LABCONSOLE_SSH_AUTHORIZED_KEYS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load(nil)
	if cfg.ServerURL != defaultServerURL {
		t.Errorf("Expected server url %s, got %s", defaultServerURL, cfg.ServerURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %s", cfg.Timeout)
	}
	if cfg.AutoSaveInterval != 30*time.Second {
		t.Errorf("Expected autosave interval 30s, got %s", cfg.AutoSaveInterval)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("Expected no rate limit, got %v", cfg.RateLimit)
	}
	if cfg.SSHHostKey != filepath.Join(defaultDataDir, "ssh_host_ed25519") {
		t.Errorf("Unexpected host key path %s", cfg.SSHHostKey)
	}
	if !errors.Is(cfg.RequireLab(), ErrNoLab) {
		t.Errorf("Expected ErrNoLab without a lab id")
	}
	if cfg.IsMCPAuthEnabled() {
		t.Errorf("Expected MCP auth disabled by default")
	}
}

func TestLoadPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("LABCONSOLE_SERVER_URL", "http://env.example:5000/")
	t.Setenv("LABCONSOLE_LAB", "7")
	t.Setenv("LABCONSOLE_TIMEOUT", "5s")
	t.Setenv("LABCONSOLE_AUTOSAVE_INTERVAL", "not-a-duration")
	t.Setenv("LABCONSOLE_RATE_LIMIT", "2.5")

	cfg := Load(nil)
	if cfg.ServerURL != "http://env.example:5000" {
		t.Errorf("Expected env url without trailing slash, got %s", cfg.ServerURL)
	}
	if cfg.LabID != "7" {
		t.Errorf("Expected lab 7, got %s", cfg.LabID)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %s", cfg.Timeout)
	}
	if cfg.AutoSaveInterval != defaultAutoSaveInterval {
		t.Errorf("Expected invalid interval to fall back to default, got %s", cfg.AutoSaveInterval)
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("Expected rate limit 2.5, got %v", cfg.RateLimit)
	}

	cfg = Load(&Config{ServerURL: "https://opts.example", LabID: "9", Timeout: time.Second})
	if cfg.ServerURL != "https://opts.example" || cfg.LabID != "9" || cfg.Timeout != time.Second {
		t.Errorf("Expected opts to override env, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://127.0.0.1:5000", false},
		{"https://lab.example.com", false},
		{"ftp://lab.example.com", true},
		{"http://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := &Config{ServerURL: tt.url}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestString(t *testing.T) {
	cfg := &Config{ServerURL: "http://x"}
	if cfg.String() != "http://x" {
		t.Errorf("Unexpected %s", cfg.String())
	}
	cfg.LabID = "3"
	if cfg.String() != "http://x (lab 3)" {
		t.Errorf("Unexpected %s", cfg.String())
	}
}
