// Package labtest is an in-memory lab backend. It serves the same JSON API
// as the real simulator and backs tests and the mock-backend command.
package labtest

import (
	"maps"
	"slices"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/model"
)

// EnablePassword is the privileged-mode password of every simulated device.
const EnablePassword = "cisco"

// Device is a simulated device.
type Device struct {
	Name       string
	Type       string
	Vendor     string
	Model      string
	Hostname   string
	Interfaces []model.Interface
	Running    []string
}

// Progress is the last transcript saved for the lab.
type Progress struct {
	Config string
	Status string
	Saves  int
}

// Lab is one lab's state.
type Lab struct {
	mu        sync.Mutex
	devices   []*Device
	edges     []model.TopologyEdge
	positions map[string]model.Position
	dns       map[string]string
	auth      map[string]bool
	progress  Progress
	commands  []string
}

// AddDevice adds a device; its hostname defaults to the name.
func (l *Lab) AddDevice(d Device) *Lab {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.Hostname == "" {
		d.Hostname = d.Name
	}
	l.devices = append(l.devices, &d)
	return l
}

// AddLink adds a stored link.
func (l *Lab) AddLink(e model.TopologyEdge) *Lab {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges = append(l.edges, e)
	return l
}

// AddDNS maps host to content.
func (l *Lab) AddDNS(host, content string) *Lab {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dns[host] = content
	return l
}

func (l *Lab) device(name string) *Device {
	for _, d := range l.devices {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Device returns a copy of the named device.
func (l *Lab) Device(name string) (Device, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.device(name)
	if d == nil {
		return Device{}, false
	}
	cp := *d
	cp.Interfaces = slices.Clone(d.Interfaces)
	return cp, true
}

// Edges returns the stored links.
func (l *Lab) Edges() []model.TopologyEdge {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.edges)
}

// Positions returns the stored node positions.
func (l *Lab) Positions() map[string]model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.positions)
}

// SetPositions replaces the stored node positions.
func (l *Lab) SetPositions(p map[string]model.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = maps.Clone(p)
}

// Progress returns the last autosaved transcript.
func (l *Lab) Progress() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress
}

// Commands returns every command received, in order.
func (l *Lab) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.commands)
}

// Authenticated reports the privileged-mode state of a device.
func (l *Lab) Authenticated(device string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.auth[device]
}

// Backend holds every lab, keyed by id.
type Backend struct {
	mu   sync.RWMutex
	labs map[string]*Lab
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{labs: make(map[string]*Lab)}
}

// AddLab creates (or resets) a lab.
func (b *Backend) AddLab(id string) *Lab {
	l := &Lab{
		positions: make(map[string]model.Position),
		dns:       make(map[string]string),
		auth:      make(map[string]bool),
	}
	b.mu.Lock()
	b.labs[id] = l
	b.mu.Unlock()
	return l
}

// Lab returns the lab with the given id.
func (b *Backend) Lab(id string) (*Lab, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.labs[id]
	return l, ok
}

// DemoLab seeds lab id with two routers, a switch and a PC.
func (b *Backend) DemoLab(id string) *Lab {
	return b.AddLab(id).
		AddDevice(Device{Name: "R1", Type: "Router", Vendor: "Cisco", Model: "2911",
			Interfaces: []model.Interface{{Name: "Gi0/0", IP: "10.0.12.1/30"}, {Name: "Gi0/1", IP: "192.168.1.1/24"}}}).
		AddDevice(Device{Name: "R2", Type: "Router", Vendor: "Cisco", Model: "2911",
			Interfaces: []model.Interface{{Name: "Gi0/0", IP: "10.0.12.2/30"}}}).
		AddDevice(Device{Name: "SW1", Type: "Switch", Vendor: "Cisco", Model: "2960",
			Interfaces: []model.Interface{{Name: "Fa0/1"}, {Name: "Fa0/2"}}}).
		AddDevice(Device{Name: "PC1", Type: "PC", Vendor: "Generic", Model: "Desktop",
			Interfaces: []model.Interface{{Name: "eth0", IP: "192.168.1.10/24"}}}).
		AddLink(model.TopologyEdge{From: "R1", To: "R2", Label: "WAN", Cost: 10,
			SrcIf: model.StringPtr("Gi0/0"), DstIf: model.StringPtr("Gi0/0")}).
		AddLink(model.TopologyEdge{From: "SW1", To: "R1", Cost: 1, DstIf: model.StringPtr("Gi0/1")}).
		AddLink(model.TopologyEdge{From: "PC1", To: "SW1", Cost: 1, SrcIf: model.StringPtr("eth0"), DstIf: model.StringPtr("Fa0/1")}).
		AddDNS("intranet.lab", "<h1>Welcome to the lab intranet</h1>")
}
