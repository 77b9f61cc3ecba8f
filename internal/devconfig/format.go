package devconfig

import (
	"fmt"
	"io"
)

// Format writes a plain-text rendering of v.
func Format(w io.Writer, v View) error {
	if _, err := fmt.Fprintf(w, "Device: %s\nHostname: %s\nInterfaces:\n", v.Device, v.Hostname); err != nil {
		return err
	}
	for _, r := range v.Rows {
		ip := r.IP
		if ip == "" {
			ip = "unassigned"
		}
		fmt.Fprintf(w, "  - %s %s", r.Name, ip)
		if r.IPErr != nil {
			fmt.Fprintf(w, " (%v)", r.IPErr)
		}
		fmt.Fprintln(w)
	}
	return nil
}
