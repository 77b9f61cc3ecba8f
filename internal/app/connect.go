package app

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
)

// NewClient builds a backend client from cfg.
func NewClient(cfg *config.Config, opts ...Option) (*labclient.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return labclient.New(labclient.Options{
		BaseURL:       cfg.ServerURL,
		SessionCookie: cfg.SessionCookie,
		Timeout:       cfg.Timeout,
		RateLimit:     cfg.RateLimit,
		Metrics:       o.metrics,
	})
}

// Connect creates a client for cfg and loads the configured lab.
func Connect(ctx context.Context, cfg *config.Config, opts ...Option) (*Lab, error) {
	if err := cfg.RequireLab(); err != nil {
		return nil, err
	}
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	log.Debug("Connecting to lab backend", "url", client.BaseURL(), "lab", cfg.LabID)
	opts = append([]Option{WithAutosaveInterval(cfg.AutoSaveInterval)}, opts...)
	lab, err := Load(ctx, client, cfg.LabID, opts...)
	if err != nil {
		return nil, fmt.Errorf("load lab %s: %w", cfg.LabID, err)
	}
	return lab, nil
}

// OpenJournal opens the journal under cfg.DataDir. The console works
// without one, so a failure is logged and nil returned.
func OpenJournal(cfg *config.Config) *journal.Journal {
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		log.Warn("Journal unavailable, saves will not be recorded", "data_dir", cfg.DataDir, "error", err)
		return nil
	}
	return j
}

// Open is Connect with the journal under cfg.DataDir attached. The
// returned function closes the lab and then the journal.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Lab, func(), error) {
	j := OpenJournal(cfg)
	if j != nil {
		opts = append(opts, WithJournal(j))
	}
	lab, err := Connect(ctx, cfg, opts...)
	if err != nil {
		if j != nil {
			j.Close()
		}
		return nil, nil, err
	}
	return lab, func() {
		lab.Close()
		if j != nil {
			j.Close()
		}
	}, nil
}
