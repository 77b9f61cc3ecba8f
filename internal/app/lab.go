// Package app is the lab application context: it owns the terminal tabs,
// the device-config form, the topology editor and autosave for one lab,
// from Load until Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/martinsuchenak/labconsole/internal/autosave"
	"github.com/martinsuchenak/labconsole/internal/browser"
	"github.com/martinsuchenak/labconsole/internal/devconfig"
	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/session"
	"github.com/martinsuchenak/labconsole/internal/topology"
)

// Client is the backend surface a lab needs. *labclient.Client implements it.
type Client interface {
	session.Backend
	devconfig.Backend
	topology.Backend
	browser.Backend
	autosave.Saver
	Devices(ctx context.Context, labID string) ([]model.DeviceSummary, error)
}

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownTab    = errors.New("unknown tab")
	ErrNotPC         = errors.New("device is not a PC")
	ErrClosed        = errors.New("lab is closed")
)

// Tab is one open terminal on a device.
type Tab struct {
	ID      string
	Device  string
	Kind    model.DeviceKind
	Session *session.Session
}

// Lab is everything open for one lab.
type Lab struct {
	mu      sync.RWMutex
	id      string
	client  Client
	devices []model.DeviceSummary
	tabs    []*Tab
	active  string
	seq     map[string]int
	closed  bool

	config   *devconfig.Controller
	editor   *topology.Editor
	autosave *autosave.Scheduler
	journal  *journal.Journal
	metrics  *metrics.Metrics
	detail   func(model.DeviceSummary)
}

type options struct {
	metrics    *metrics.Metrics
	journal    *journal.Journal
	interval   time.Duration
	renderer   topology.Renderer
	confirmer  topology.Confirmer
	detail     func(model.DeviceSummary)
	noTerminal bool
}

// Option configures Load.
type Option func(*options)

// WithMetrics records lab activity on m.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithJournal records saves in j.
func WithJournal(j *journal.Journal) Option { return func(o *options) { o.journal = j } }

// WithAutosaveInterval sets the autosave period.
func WithAutosaveInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

// WithRenderer sets the topology view.
func WithRenderer(r topology.Renderer) Option { return func(o *options) { o.renderer = r } }

// WithConfirmer answers the link deletion prompt.
func WithConfirmer(c topology.Confirmer) Option { return func(o *options) { o.confirmer = c } }

// WithDetailHandler is called when a device without a terminal is opened.
func WithDetailHandler(fn func(model.DeviceSummary)) Option {
	return func(o *options) { o.detail = fn }
}

// WithoutTerminals skips opening a tab per device at load time.
func WithoutTerminals() Option { return func(o *options) { o.noTerminal = true } }

// Load fetches the lab's devices and topology and opens a terminal tab for
// every router, switch and PC. When the device listing is unavailable the
// topology nodes stand in for it.
func Load(ctx context.Context, client Client, labID string, opts ...Option) (*Lab, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := &Lab{
		id:      labID,
		client:  client,
		seq:     make(map[string]int),
		config:  devconfig.New(client),
		journal: o.journal,
		metrics: o.metrics,
		detail:  o.detail,
	}

	editorOpts := []topology.Option{topology.WithActions(l), topology.WithMetrics(o.metrics)}
	if o.renderer != nil {
		editorOpts = append(editorOpts, topology.WithRenderer(o.renderer))
	}
	if o.confirmer != nil {
		editorOpts = append(editorOpts, topology.WithConfirmer(o.confirmer))
	}
	l.editor = topology.New(labID, client, editorOpts...)
	if err := l.editor.Load(ctx); err != nil {
		return nil, err
	}

	devices, err := client.Devices(ctx, labID)
	if err != nil {
		log.Warn("Device listing unavailable, using topology nodes", "lab", labID, "error", err)
		for _, n := range l.editor.Graph().Nodes {
			devices = append(devices, model.DeviceSummary{Name: n.ID, Type: string(n.Group)})
		}
	}
	l.devices = devices

	if !o.noTerminal {
		for _, d := range devices {
			if d.Kind() == model.KindOther {
				continue
			}
			if _, err := l.OpenTab(d.Name); err != nil {
				return nil, err
			}
		}
	}

	saveOpts := []autosave.Option{autosave.WithInterval(o.interval), autosave.WithMetrics(o.metrics)}
	if o.journal != nil {
		saveOpts = append(saveOpts, autosave.WithJournal(o.journal))
	}
	l.autosave = autosave.New(labID, l, client, saveOpts...)

	log.Info("Lab loaded", "lab", labID, "devices", len(devices), "tabs", len(l.tabs))
	return l, nil
}

// ID is the lab id.
func (l *Lab) ID() string { return l.id }

// Devices lists the lab's devices.
func (l *Lab) Devices() []model.DeviceSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.devices)
}

// Device returns the named device.
func (l *Lab) Device(name string) (model.DeviceSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.deviceLocked(name)
}

func (l *Lab) deviceLocked(name string) (model.DeviceSummary, bool) {
	i := slices.IndexFunc(l.devices, func(d model.DeviceSummary) bool { return d.Name == name })
	if i < 0 {
		return model.DeviceSummary{}, false
	}
	return l.devices[i], true
}

// Config is the device-config form.
func (l *Lab) Config() *devconfig.Controller { return l.config }

// Topology is the graph editor.
func (l *Lab) Topology() *topology.Editor { return l.editor }

// Autosave is the lab's autosave scheduler.
func (l *Lab) Autosave() *autosave.Scheduler { return l.autosave }

// OpenTab starts a new, independent terminal session on device. The first
// tab opened becomes active.
func (l *Lab) OpenTab(device string) (*Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	d, ok := l.deviceLocked(device)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}

	l.seq[device]++
	tab := &Tab{
		ID:      fmt.Sprintf("%s-%d", device, l.seq[device]),
		Device:  device,
		Kind:    d.Kind(),
		Session: session.New(l.id, device, l.client, session.WithMetrics(l.metrics)),
	}
	l.tabs = append(l.tabs, tab)
	if l.active == "" {
		l.active = tab.ID
	}
	l.metrics.SetOpenTabs(len(l.tabs))
	log.Debug("Terminal tab opened", "lab", l.id, "tab", tab.ID)
	return tab, nil
}

// CloseTab discards a tab. Closing the active tab activates the next one.
func (l *Lab) CloseTab(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.tabIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	l.tabs = slices.Delete(l.tabs, i, i+1)
	if l.active == id {
		l.active = ""
		if len(l.tabs) > 0 {
			l.active = l.tabs[i%len(l.tabs)].ID
		}
	}
	l.metrics.SetOpenTabs(len(l.tabs))
	return nil
}

func (l *Lab) tabIndexLocked(id string) int {
	return slices.IndexFunc(l.tabs, func(t *Tab) bool { return t.ID == id })
}

// Tabs returns the open tabs in opening order.
func (l *Lab) Tabs() []*Tab {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.tabs)
}

// Tab returns the tab with the given id.
func (l *Lab) Tab(id string) (*Tab, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.tabIndexLocked(id); i >= 0 {
		return l.tabs[i], true
	}
	return nil, false
}

// Terminal returns the first tab open on device.
func (l *Lab) Terminal(device string) (*Tab, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tabs {
		if t.Device == device {
			return t, true
		}
	}
	return nil, false
}

// Activate makes the tab the active one.
func (l *Lab) Activate(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tabIndexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	l.active = id
	return nil
}

// Active returns the active tab.
func (l *Lab) Active() (*Tab, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.tabIndexLocked(l.active); i >= 0 {
		return l.tabs[i], true
	}
	return nil, false
}

// NextTab activates the tab after the active one, wrapping around.
func (l *Lab) NextTab() (*Tab, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tabs) == 0 {
		return nil, false
	}
	i := (l.tabIndexLocked(l.active) + 1) % len(l.tabs)
	l.active = l.tabs[i].ID
	return l.tabs[i], true
}

// ActiveTranscript returns the active tab's visible text.
func (l *Lab) ActiveTranscript() (device, text string, ok bool) {
	t, ok := l.Active()
	if !ok {
		return "", "", false
	}
	return t.Device, t.Session.Transcript(), true
}

// OpenTerminal activates the device's terminal tab, if there is one.
func (l *Lab) OpenTerminal(device string) bool {
	t, ok := l.Terminal(device)
	if !ok {
		return false
	}
	return l.Activate(t.ID) == nil
}

// OpenDeviceDetail shows a device that has no terminal.
func (l *Lab) OpenDeviceDetail(device string) {
	d, ok := l.Device(device)
	if !ok {
		d = model.DeviceSummary{Name: device}
	}
	if l.detail != nil {
		l.detail(d)
		return
	}
	log.Info("Device detail", "lab", l.id, "device", d.Name, "type", d.Type, "vendor", d.Vendor, "model", d.Model)
}

// OpenDeviceConfig opens the configuration form for device.
func (l *Lab) OpenDeviceConfig(ctx context.Context, device string) error {
	return l.config.Open(ctx, l.id, device)
}

// SaveDeviceConfig saves the open form and journals the outcome.
func (l *Lab) SaveDeviceConfig(ctx context.Context) error {
	return l.saveConfig(ctx, l.config)
}

func (l *Lab) saveConfig(ctx context.Context, form *devconfig.Controller) error {
	device := form.Device()
	err := form.Save(ctx)
	var verr *devconfig.ValidationError
	if errors.As(err, &verr) || errors.Is(err, devconfig.ErrStale) || errors.Is(err, devconfig.ErrNotOpen) {
		return err
	}
	l.record(ctx, journal.KindConfig, device, err)
	return err
}

// SaveTopology saves the graph and journals the outcome.
func (l *Lab) SaveTopology(ctx context.Context) error {
	err := l.editor.Save(ctx)
	l.record(ctx, journal.KindTopology, "", err)
	return err
}

func (l *Lab) record(ctx context.Context, kind journal.Kind, device string, err error) {
	if l.journal == nil {
		return
	}
	s := &journal.Snapshot{LabID: l.id, Device: device, Kind: kind}
	if err != nil {
		s.Status = journal.StatusFailed
		s.Error = err.Error()
	}
	if jerr := l.journal.Record(ctx, s); jerr != nil {
		log.Warn("Failed to journal save", "lab", l.id, "kind", kind, "error", jerr)
	}
}

// Browser returns a browser running on a PC.
func (l *Lab) Browser(device string) (*browser.Browser, error) {
	d, ok := l.Device(device)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	if d.Kind() != model.KindPC {
		return nil, fmt.Errorf("%w: %s", ErrNotPC, device)
	}
	return browser.New(l.id, device, l.client), nil
}

// Close stops autosave and discards every tab and open form.
func (l *Lab) Close() {
	l.autosave.Stop()
	l.config.Close()
	l.editor.CloseLink()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.tabs = nil
	l.active = ""
	l.metrics.SetOpenTabs(0)
	log.Info("Lab closed", "lab", l.id)
}
