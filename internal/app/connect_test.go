package app

import (
	"context"
	"testing"
	"time"

	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequiresLab(t *testing.T) {
	cfg := config.Load(&config.Config{ServerURL: "http://127.0.0.1:1"})
	cfg.LabID = ""
	_, err := Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrNoLab)
}

func TestConnectLoadsLab(t *testing.T) {
	srv, _ := labtest.NewServer()
	defer srv.Close()

	cfg := config.Load(&config.Config{ServerURL: srv.URL, LabID: "1", AutoSaveInterval: 5 * time.Minute})
	l, err := Connect(context.Background(), cfg, WithMetrics(metrics.New()), WithoutTerminals())
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "1", l.ID())
	assert.Empty(t, l.Tabs())
	assert.Len(t, l.Devices(), 4)
	assert.Equal(t, 5*time.Minute, l.Autosave().Interval())
}

func TestNewClientTrimsBaseURL(t *testing.T) {
	cfg := config.Load(&config.Config{ServerURL: "http://lab.example:5000/"})
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://lab.example:5000", c.BaseURL())
}

func TestConnectUnknownLab(t *testing.T) {
	srv, _ := labtest.NewServer()
	defer srv.Close()

	cfg := config.Load(&config.Config{ServerURL: srv.URL, LabID: "missing"})
	_, err := Connect(context.Background(), cfg)
	assert.ErrorContains(t, err, "load lab missing")
}

func TestOpenAttachesJournal(t *testing.T) {
	srv, _ := labtest.NewServer()
	defer srv.Close()

	cfg := config.Load(&config.Config{ServerURL: srv.URL, LabID: "1", DataDir: t.TempDir()})
	l, done, err := Open(context.Background(), cfg, WithoutTerminals())
	require.NoError(t, err)
	defer done()

	require.NoError(t, l.SaveTopology(context.Background()))
	require.NotNil(t, l.journal)
	snaps, err := l.journal.List(context.Background(), journal.Filter{LabID: "1"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, journal.KindTopology, snaps[0].Kind)
}
