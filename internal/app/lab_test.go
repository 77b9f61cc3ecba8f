package app

import (
	"context"
	"errors"
	"testing"

	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*labclient.Client, *labtest.Lab) {
	t.Helper()
	srv, b := labtest.NewServer()
	t.Cleanup(srv.Close)
	client, err := labclient.New(labclient.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	lab, _ := b.Lab("1")
	return client, lab
}

func TestLoadOpensTabPerDevice(t *testing.T) {
	client, _ := newClient(t)
	l, err := Load(context.Background(), client, "1")
	require.NoError(t, err)
	defer l.Close()

	var ids []string
	for _, tab := range l.Tabs() {
		ids = append(ids, tab.ID)
	}
	assert.Equal(t, []string{"R1-1", "R2-1", "SW1-1", "PC1-1"}, ids)

	active, ok := l.Active()
	require.True(t, ok)
	assert.Equal(t, "R1-1", active.ID)
	assert.Len(t, l.Topology().Graph().Nodes, 4)
}

func TestTabsAreIndependent(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	l, err := Load(ctx, client, "1")
	require.NoError(t, err)
	defer l.Close()

	second, err := l.OpenTab("R1")
	require.NoError(t, err)
	assert.Equal(t, "R1-2", second.ID)

	first, _ := l.Tab("R1-1")
	require.NoError(t, first.Session.Submit(ctx, "show run"))
	assert.Equal(t, []string{"show run"}, first.Session.History())
	assert.Empty(t, second.Session.History())

	_, err = l.OpenTab("R9")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestActivateAndTranscript(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	l, err := Load(ctx, client, "1")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Activate("R2-1"))
	tab, _ := l.Active()
	require.NoError(t, tab.Session.Submit(ctx, "show ip interface brief"))

	device, text, ok := l.ActiveTranscript()
	require.True(t, ok)
	assert.Equal(t, "R2", device)
	assert.Contains(t, text, "R2> show ip interface brief")

	next, ok := l.NextTab()
	require.True(t, ok)
	assert.Equal(t, "SW1-1", next.ID)

	assert.ErrorIs(t, l.Activate("nope"), ErrUnknownTab)
}

func TestCloseTabMovesActive(t *testing.T) {
	client, _ := newClient(t)
	l, err := Load(context.Background(), client, "1", WithoutTerminals())
	require.NoError(t, err)
	defer l.Close()
	assert.Empty(t, l.Tabs())
	_, _, ok := l.ActiveTranscript()
	assert.False(t, ok)

	a, _ := l.OpenTab("R1")
	b, _ := l.OpenTab("R2")
	require.NoError(t, l.CloseTab(a.ID))
	active, ok := l.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)

	require.NoError(t, l.CloseTab(b.ID))
	_, ok = l.Active()
	assert.False(t, ok)
	assert.ErrorIs(t, l.CloseTab(b.ID), ErrUnknownTab)
}

func TestTopologyActions(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	var details []model.DeviceSummary
	l, err := Load(ctx, client, "1", WithDetailHandler(func(d model.DeviceSummary) { details = append(details, d) }))
	require.NoError(t, err)
	defer l.Close()

	ed := l.Topology()
	require.NoError(t, ed.Handle(ctx, topology.NodeClicked{ID: "SW1"}))
	active, _ := l.Active()
	assert.Equal(t, "SW1-1", active.ID)
	assert.Empty(t, details)

	require.NoError(t, l.CloseTab("PC1-1"))
	require.NoError(t, ed.Handle(ctx, topology.NodeClicked{ID: "PC1"}))
	require.Len(t, details, 1)
	assert.Equal(t, "Generic", details[0].Vendor)

	require.NoError(t, ed.Handle(ctx, topology.NodeDoubleClicked{ID: "R1"}))
	view := l.Config().View()
	assert.True(t, view.Open)
	assert.Equal(t, "R1", view.Device)
	assert.Len(t, view.Rows, 2)
}

func TestSavesAreJournaled(t *testing.T) {
	client, lab := newClient(t)
	ctx := context.Background()
	j, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	l, err := Load(ctx, client, "1", WithJournal(j))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.OpenDeviceConfig(ctx, "R2"))
	require.NoError(t, l.Config().SetIP(0, "10.0.12.6/30"))
	require.NoError(t, l.SaveDeviceConfig(ctx))
	d, _ := lab.Device("R2")
	assert.Equal(t, "10.0.12.6/30", d.Interfaces[0].IP)

	require.NoError(t, l.SaveTopology(ctx))
	require.NoError(t, l.Autosave().RunOnce(ctx))

	snaps, err := j.List(ctx, journal.Filter{LabID: "1"})
	require.NoError(t, err)
	kinds := map[journal.Kind]int{}
	for _, s := range snaps {
		kinds[s.Kind]++
	}
	assert.Equal(t, map[journal.Kind]int{journal.KindConfig: 1, journal.KindTopology: 1, journal.KindAutosave: 1}, kinds)

	// Validation failures never reach the backend or the journal.
	require.NoError(t, l.OpenDeviceConfig(ctx, "R2"))
	require.NoError(t, l.Config().SetIP(0, "300.1.1.1"))
	err = l.SaveDeviceConfig(ctx)
	assert.Error(t, err)
	snaps, _ = j.List(ctx, journal.Filter{LabID: "1", Kind: journal.KindConfig})
	assert.Len(t, snaps, 1)
}

func TestBrowserOnlyOnPCs(t *testing.T) {
	client, _ := newClient(t)
	l, err := Load(context.Background(), client, "1")
	require.NoError(t, err)
	defer l.Close()

	b, err := l.Browser("PC1")
	require.NoError(t, err)
	page, err := b.Browse(context.Background(), "intranet.lab")
	require.NoError(t, err)
	assert.Contains(t, page, "intranet")

	_, err = l.Browser("R1")
	assert.ErrorIs(t, err, ErrNotPC)
}

type noDevices struct{ *labclient.Client }

func (noDevices) Devices(context.Context, string) ([]model.DeviceSummary, error) {
	return nil, errors.New("not implemented")
}

func TestDevicesFallBackToTopology(t *testing.T) {
	client, _ := newClient(t)
	l, err := Load(context.Background(), noDevices{client}, "1")
	require.NoError(t, err)
	defer l.Close()

	assert.Len(t, l.Devices(), 4)
	d, ok := l.Device("SW1")
	require.True(t, ok)
	assert.Equal(t, model.KindSwitch, d.Kind())
	assert.Len(t, l.Tabs(), 4)
}

func TestClose(t *testing.T) {
	client, _ := newClient(t)
	l, err := Load(context.Background(), client, "1")
	require.NoError(t, err)
	require.NoError(t, l.Autosave().Start())

	l.Close()
	l.Close()
	assert.False(t, l.Autosave().Running())
	assert.Empty(t, l.Tabs())
	_, err = l.OpenTab("R1")
	assert.ErrorIs(t, err, ErrClosed)
}
