// Package browser is the PC device's web browser: it resolves lab
// hostnames through the backend and manages lab DNS records.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
)

// Backend resolves hosts and stores DNS records.
type Backend interface {
	Browse(ctx context.Context, labID, device, host string) (*labclient.BrowseResponse, error)
	AddDNSRecord(ctx context.Context, labID, host, response string) (*labclient.Result, error)
}

const (
	// NoContent is shown when a host resolves to an empty page.
	NoContent = "(no content returned)"
	// DNSAdded is the confirmation for a stored record.
	DNSAdded = "DNS entry added"
)

var (
	ErrHostname     = errors.New("Please enter a hostname.")
	ErrHostRequired = errors.New("Host required")
)

// PageError is a failure reported by the backend for a browse request.
type PageError struct {
	Host    string
	Message string
}

func (e *PageError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown"
	}
	return "Error: " + msg
}

// Browser browses from one PC.
type Browser struct {
	labID   string
	device  string
	backend Backend
}

// New returns a browser for device in lab labID.
func New(labID, device string, backend Backend) *Browser {
	return &Browser{labID: labID, device: device, backend: backend}
}

// Device is the PC this browser runs on.
func (b *Browser) Device() string { return b.device }

// Browse fetches host and returns the page text.
func (b *Browser) Browse(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", ErrHostname
	}

	resp, err := b.backend.Browse(ctx, b.labID, b.device, host)
	if err != nil {
		log.Warn("Browse request failed", "device", b.device, "host", host, "error", err)
		return "", fmt.Errorf("Request failed: %w", err)
	}
	if !resp.Success {
		return "", &PageError{Host: host, Message: resp.Error}
	}
	if resp.Content == "" {
		return NoContent, nil
	}
	return resp.Content, nil
}

// AddDNS maps host to response for every PC in the lab.
func (b *Browser) AddDNS(ctx context.Context, host, response string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", ErrHostRequired
	}

	res, err := b.backend.AddDNSRecord(ctx, b.labID, host, response)
	if err != nil {
		return "", fmt.Errorf("Failed to add DNS entry: %w", err)
	}
	if !res.Success {
		if res.Error != "" {
			return "", errors.New(res.Error)
		}
		return "", errors.New("Failed to add DNS entry")
	}
	log.Info("DNS entry added", "lab", b.labID, "host", host)
	return DNSAdded, nil
}
