package devconfig

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	config  *model.DeviceConfig
	loadErr error
	result  *labclient.Result
	saveErr error
	saved   []model.DeviceConfig

	// gate, when set, blocks calls until closed; entered is signalled
	// as each blocked call starts.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) wait(ctx context.Context) {
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
}

func (f *fakeBackend) DeviceConfig(ctx context.Context, _, _ string) (*model.DeviceConfig, error) {
	f.wait(ctx)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	cp := *f.config
	return &cp, nil
}

func (f *fakeBackend) SaveDeviceConfig(ctx context.Context, _, _ string, cfg model.DeviceConfig) (*labclient.Result, error) {
	f.wait(ctx)
	f.mu.Lock()
	f.saved = append(f.saved, cfg)
	f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &labclient.Result{Success: true}, nil
}

func newFake() *fakeBackend {
	return &fakeBackend{config: &model.DeviceConfig{
		Hostname: "",
		Interfaces: []model.Interface{
			{Name: "Gi0/0", IP: "10.0.0.1/24", Address: "10.0.0.1"},
			{Name: "Gi0/1", IP: ""},
		},
	}}
}

func TestOpenReplacesState(t *testing.T) {
	f := newFake()
	c := New(f)
	require.NoError(t, c.Open(context.Background(), "1", "R1"))

	v := c.View()
	assert.True(t, v.Open)
	assert.Equal(t, "R1", v.Hostname, "hostname falls back to the device name")
	assert.Len(t, v.Rows, 2)
	assert.False(t, v.Invalid)
	assert.True(t, c.CanSave())

	f.config = &model.DeviceConfig{Hostname: "core", Interfaces: nil}
	require.NoError(t, c.Open(context.Background(), "1", "R2"))
	v = c.View()
	assert.Equal(t, "core", v.Hostname)
	assert.Empty(t, v.Rows)
	assert.Equal(t, "R2", c.Device())
}

func TestOpenFailureKeepsFormClosed(t *testing.T) {
	f := newFake()
	f.loadErr = errors.New("boom")
	c := New(f)
	err := c.Open(context.Background(), "1", "R1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load device config")
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.AddRow(), ErrNotOpen)
}

func TestSaveDisabledIffRowInvalid(t *testing.T) {
	c := New(newFake())
	require.NoError(t, c.Open(context.Background(), "1", "R1"))

	require.NoError(t, c.AddRow())
	assert.True(t, c.Invalid(), "a new row has no name")
	assert.False(t, c.CanSave())

	require.NoError(t, c.SetName(2, "Gi0/2"))
	assert.False(t, c.Invalid())

	require.NoError(t, c.SetIP(2, "10.0.0.999"))
	assert.True(t, c.Invalid())
	v := c.View()
	assert.ErrorIs(t, v.Rows[2].IPErr, validate.ErrOctetRange)
	assert.Nil(t, v.Rows[2].NameErr)

	require.NoError(t, c.RemoveRow(2))
	assert.False(t, c.Invalid())
	assert.Error(t, c.RemoveRow(5))
}

func TestSaveInvalidSendsNothing(t *testing.T) {
	f := newFake()
	c := New(f)
	require.NoError(t, c.Open(context.Background(), "1", "R1"))
	require.NoError(t, c.SetIP(0, "10.0.0/24"))
	require.NoError(t, c.SetName(1, "  "))

	err := c.Save(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	assert.Empty(t, f.saved)
	assert.True(t, c.IsOpen())
}

func TestSaveSuccessClosesForm(t *testing.T) {
	f := newFake()
	c := New(f)
	require.NoError(t, c.Open(context.Background(), "1", "R1"))
	require.NoError(t, c.SetHostname(" EDGE "))
	require.NoError(t, c.SetIP(1, " 192.168.0.1 "))

	require.NoError(t, c.Save(context.Background()))
	assert.False(t, c.IsOpen())
	require.Len(t, f.saved, 1)
	assert.Equal(t, "EDGE", f.saved[0].Hostname)
	assert.Equal(t, "192.168.0.1", f.saved[0].Interfaces[1].IP)
	assert.Empty(t, f.saved[0].Interfaces[0].Address, "derived fields are not sent back")
}

func TestSaveBackendFailureKeepsFormOpen(t *testing.T) {
	tests := []struct {
		name   string
		result *labclient.Result
		want   string
	}{
		{"error", &labclient.Result{Error: "interfaces must be a list"}, "Failed to save config: interfaces must be a list"},
		{"errors", &labclient.Result{Errors: []string{"a", "b"}}, "Failed to save config: a; b"},
		{"fallback", &labclient.Result{}, "Failed to save config: unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			f.result = tt.result
			c := New(f)
			require.NoError(t, c.Open(context.Background(), "1", "R1"))
			err := c.Save(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, c.IsOpen())
		})
	}
}

func TestLateSaveResponseIsIgnored(t *testing.T) {
	f := newFake()
	c := New(f)
	require.NoError(t, c.Open(context.Background(), "1", "R1"))

	f.gate = make(chan struct{})
	f.entered = make(chan struct{})
	f.result = &labclient.Result{Error: "late failure"}
	done := make(chan error)
	go func() { done <- c.Save(context.Background()) }()
	<-f.entered

	c.Close()
	close(f.gate)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.False(t, c.IsOpen())
}

func TestLateOpenResponseIsIgnored(t *testing.T) {
	f := newFake()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{})
	c := New(f)
	done := make(chan error)
	go func() { done <- c.Open(context.Background(), "1", "R1") }()
	<-f.entered

	c.Close()
	close(f.gate)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.False(t, c.IsOpen())
}

func TestAgainstMockBackend(t *testing.T) {
	srv, backend := labtest.NewServer()
	defer srv.Close()
	client, err := labclient.New(labclient.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	c := New(client)
	require.NoError(t, c.Open(context.Background(), "1", "R2"))
	require.NoError(t, c.AddRow())
	require.NoError(t, c.SetName(1, "Gi0/1"))
	require.NoError(t, c.SetIP(1, "172.16.0.1/16"))
	require.NoError(t, c.Save(context.Background()))

	lab, _ := backend.Lab("1")
	d, _ := lab.Device("R2")
	require.Len(t, d.Interfaces, 2)
	assert.Equal(t, "172.16.0.1/16", d.Interfaces[1].IP)
}
