// Package devconfig is the device configuration form: hostname plus an
// editable list of interface rows, validated before anything is saved.
package devconfig

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/validate"
)

// Backend loads and stores device configuration.
type Backend interface {
	DeviceConfig(ctx context.Context, labID, device string) (*model.DeviceConfig, error)
	SaveDeviceConfig(ctx context.Context, labID, device string, cfg model.DeviceConfig) (*labclient.Result, error)
}

var (
	// ErrStale is returned when a response arrives after the form it was
	// issued for has been closed or reopened. The response is discarded.
	ErrStale   = errors.New("form closed before the response arrived")
	ErrNotOpen = errors.New("device config form is not open")
)

// ValidationError lists every failing field; nothing was sent.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid interfaces: " + strings.Join(msgs, "; ")
}

// Row is an interface row with its current validation state.
type Row struct {
	Name    string
	IP      string
	NameErr error
	IPErr   error
}

// View is a snapshot of the form for rendering.
type View struct {
	Open     bool
	LabID    string
	Device   string
	Hostname string
	Rows     []Row
	Invalid  bool
}

// Controller owns the form state. A zero generation means never opened.
type Controller struct {
	mu      sync.Mutex
	backend Backend

	open     bool
	labID    string
	device   string
	hostname string
	rows     []model.Interface
	errs     []validate.FieldError
	gen      uint64
}

// New returns a closed controller.
func New(backend Backend) *Controller {
	return &Controller{backend: backend}
}

// Open loads the device's configuration and shows the form. On failure
// the form stays closed.
func (c *Controller) Open(ctx context.Context, labID, device string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.open = false
	c.mu.Unlock()

	cfg, err := c.backend.DeviceConfig(ctx, labID, device)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrStale
	}
	if err != nil {
		log.Warn("Failed to load device config", "lab", labID, "device", device, "error", err)
		return fmt.Errorf("Failed to load device config: %w", err)
	}

	c.labID = labID
	c.device = device
	c.hostname = cfg.Hostname
	if c.hostname == "" {
		c.hostname = device
	}
	c.rows = make([]model.Interface, len(cfg.Interfaces))
	for i, it := range cfg.Interfaces {
		c.rows[i] = model.Interface{Name: it.Name, IP: it.IP}
	}
	c.open = true
	c.revalidateLocked()
	return nil
}

// Close hides the form; in-flight responses for it are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.open = false
	c.mu.Unlock()
}

// IsOpen reports whether the form is visible.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Device returns the device the form was last opened for.
func (c *Controller) Device() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

func (c *Controller) revalidateLocked() {
	pairs := make([]validate.Pair, len(c.rows))
	for i, r := range c.rows {
		pairs[i] = validate.Pair{Name: r.Name, IP: r.IP}
	}
	c.errs = validate.Rows(pairs)
}

// AddRow appends an empty interface row.
func (c *Controller) AddRow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.rows = append(c.rows, model.Interface{})
	c.revalidateLocked()
	return nil
}

// RemoveRow removes the row at idx.
func (c *Controller) RemoveRow(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if idx < 0 || idx >= len(c.rows) {
		return fmt.Errorf("no interface row %d", idx)
	}
	c.rows = slices.Delete(c.rows, idx, idx+1)
	c.revalidateLocked()
	return nil
}

// SetField updates one field of a row and revalidates the form.
func (c *Controller) SetField(idx int, field validate.Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if idx < 0 || idx >= len(c.rows) {
		return fmt.Errorf("no interface row %d", idx)
	}
	switch field {
	case validate.FieldName:
		c.rows[idx].Name = value
	case validate.FieldIP:
		c.rows[idx].IP = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	c.revalidateLocked()
	return nil
}

// SetName is SetField for the name column.
func (c *Controller) SetName(idx int, value string) error {
	return c.SetField(idx, validate.FieldName, value)
}

// SetIP is SetField for the ip column.
func (c *Controller) SetIP(idx int, value string) error {
	return c.SetField(idx, validate.FieldIP, value)
}

// SetHostname updates the hostname.
func (c *Controller) SetHostname(v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.hostname = v
	return nil
}

// Invalid reports whether any row currently fails validation.
func (c *Controller) Invalid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs) > 0
}

// CanSave reports whether Save would send a request.
func (c *Controller) CanSave() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && len(c.errs) == 0
}

// View returns a snapshot of the form.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Open:     c.open,
		LabID:    c.labID,
		Device:   c.device,
		Hostname: c.hostname,
		Rows:     make([]Row, len(c.rows)),
		Invalid:  len(c.errs) > 0,
	}
	for i, r := range c.rows {
		v.Rows[i] = Row{Name: r.Name, IP: r.IP}
	}
	for _, fe := range c.errs {
		switch fe.Field {
		case validate.FieldName:
			v.Rows[fe.Row].NameErr = fe.Err
		case validate.FieldIP:
			v.Rows[fe.Row].IPErr = fe.Err
		}
	}
	return v
}

// Save trims and revalidates every row, then stores the configuration.
// Invalid rows yield a *ValidationError and no request. On success the
// form closes; a backend failure keeps it open and returns its message.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	for i := range c.rows {
		c.rows[i].Name = strings.TrimSpace(c.rows[i].Name)
		c.rows[i].IP = strings.TrimSpace(c.rows[i].IP)
	}
	c.hostname = strings.TrimSpace(c.hostname)
	c.revalidateLocked()
	if len(c.errs) > 0 {
		err := &ValidationError{Fields: slices.Clone(c.errs)}
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	labID, device := c.labID, c.device
	cfg := model.DeviceConfig{Hostname: c.hostname, Interfaces: slices.Clone(c.rows)}
	c.mu.Unlock()

	res, err := c.backend.SaveDeviceConfig(ctx, labID, device, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrStale
	}
	if err != nil {
		log.Warn("Failed to save device config", "lab", labID, "device", device, "error", err)
		return fmt.Errorf("Failed to save config: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("Failed to save config: %w", res.Err())
	}

	log.Info("Device config saved", "lab", labID, "device", device, "interfaces", len(cfg.Interfaces))
	c.gen++
	c.open = false
	return nil
}
