package model

import "strings"

// DeviceKind is the normalised device type of a lab node.
type DeviceKind string

const (
	KindRouter DeviceKind = "router"
	KindSwitch DeviceKind = "switch"
	KindPC     DeviceKind = "pc"
	KindOther  DeviceKind = "other"
)

// ParseDeviceKind maps a backend device type ("Router", "PC", ...) to a kind.
func ParseDeviceKind(s string) DeviceKind {
	switch k := DeviceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRouter, KindSwitch, KindPC:
		return k
	default:
		return KindOther
	}
}

// RequiresEnable reports whether the device kind has a privileged mode.
func (k DeviceKind) RequiresEnable() bool {
	return k == KindRouter || k == KindSwitch
}

// Interface is one configurable port on a device. IP is empty or an IPv4
// address with an optional /0-32 prefix.
type Interface struct {
	Name string `json:"name" yaml:"name"`
	IP   string `json:"ip" yaml:"ip"`

	// Address and Network are derived by the backend and never sent back.
	Address string `json:"address,omitempty" yaml:"-"`
	Network string `json:"network,omitempty" yaml:"-"`
}

// DeviceSummary is a row of the lab device listing.
type DeviceSummary struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

// Kind returns the normalised kind of the summary's type.
func (d DeviceSummary) Kind() DeviceKind {
	return ParseDeviceKind(d.Type)
}

// DeviceConfig is the editable part of a device.
type DeviceConfig struct {
	Hostname   string      `json:"hostname"`
	Interfaces []Interface `json:"interfaces"`
}
