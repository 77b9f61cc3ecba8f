package app

import (
	"context"
	"errors"
	"strings"

	"github.com/martinsuchenak/labconsole/internal/devconfig"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/worker"
)

// ErrNoPC is returned by FirstPC when the lab has no PC.
var ErrNoPC = errors.New("lab has no PC")

// FirstPC returns the name of the first PC in the device listing.
func (l *Lab) FirstPC() (string, error) {
	for _, d := range l.Devices() {
		if d.Kind() == model.KindPC {
			return d.Name, nil
		}
	}
	return "", ErrNoPC
}

// EnsureTab returns the device's terminal tab, opening one if needed.
func (l *Lab) EnsureTab(device string) (*Tab, error) {
	if t, ok := l.Terminal(device); ok {
		return t, nil
	}
	return l.OpenTab(device)
}

// RunCommand submits command on the device's terminal and returns the
// transcript lines it produced. Backend failures are part of the output.
func (l *Lab) RunCommand(ctx context.Context, device, command string) (string, error) {
	tab, err := l.EnsureTab(device)
	if err != nil {
		return "", err
	}
	before := len(tab.Session.Lines())
	if err := tab.Session.Submit(ctx, command); err != nil {
		log.Debug("Command failed", "device", device, "error", err)
	}

	var out []string
	for _, line := range tab.Session.Lines()[before:] {
		out = append(out, line.Text)
	}
	return strings.Join(out, "\n"), nil
}

// Broadcast runs command on each device, at most workers at a time, and
// returns one result per device in order. An empty device list means every
// router, switch and PC; duplicates run once.
func (l *Lab) Broadcast(ctx context.Context, devices []string, command string, workers int) []worker.Result {
	if len(devices) == 0 {
		for _, d := range l.Devices() {
			if d.Kind() != model.KindOther {
				devices = append(devices, d.Name)
			}
		}
	}

	seen := make(map[string]bool, len(devices))
	jobs := make([]worker.Job, 0, len(devices))
	for _, device := range devices {
		if seen[device] {
			continue
		}
		seen[device] = true
		jobs = append(jobs, worker.Job{ID: device, Handler: func(ctx context.Context) (string, error) {
			return l.RunCommand(ctx, device, command)
		}})
	}

	results := worker.NewPool(workers).Run(ctx, jobs)
	log.Info("Broadcast finished", "lab", l.id, "devices", len(jobs))
	return results
}

// ReadDeviceConfig returns the device's configuration as the config form
// would show it. It uses a private form, so the interactive one and
// concurrent callers are left alone.
func (l *Lab) ReadDeviceConfig(ctx context.Context, device string) (devconfig.View, error) {
	form := devconfig.New(l.client)
	if err := form.Open(ctx, l.id, device); err != nil {
		return devconfig.View{}, err
	}
	defer form.Close()
	return form.View(), nil
}

// ApplyDeviceConfig replaces the device's interface rows, and its hostname
// when one is given. The rows go through a private config form so the same
// validation applies as for interactive edits.
func (l *Lab) ApplyDeviceConfig(ctx context.Context, device string, hostname *string, rows []model.Interface) error {
	form := devconfig.New(l.client)
	if err := form.Open(ctx, l.id, device); err != nil {
		return err
	}
	defer form.Close()

	if hostname != nil {
		if err := form.SetHostname(*hostname); err != nil {
			return err
		}
	}
	for len(form.View().Rows) > 0 {
		if err := form.RemoveRow(0); err != nil {
			return err
		}
	}
	for i, r := range rows {
		if err := form.AddRow(); err != nil {
			return err
		}
		if err := form.SetName(i, r.Name); err != nil {
			return err
		}
		if err := form.SetIP(i, r.IP); err != nil {
			return err
		}
	}
	return l.saveConfig(ctx, form)
}
