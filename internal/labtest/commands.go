package labtest

import (
	"fmt"
	"strings"
)

// simulate produces canned output for a handful of IOS-style commands.
// Unknown commands are accepted silently. Callers hold the lab lock.
func simulate(d *Device, command string) string {
	cmd := strings.TrimSpace(command)
	lower := strings.ToLower(cmd)
	fields := strings.Fields(cmd)

	switch {
	case lower == "":
		return ""
	case lower == "show running-config" || lower == "show run":
		return runningConfig(d)
	case lower == "show ip interface brief" || lower == "show ip int brief":
		return interfaceBrief(d)
	case strings.HasPrefix(lower, "ping") && len(fields) > 1:
		return fmt.Sprintf("Sending 5, 100-byte ICMP Echos to %s, timeout is 2 seconds:\n!!!!!\nSuccess rate is 100 percent (5/5)", fields[1])
	case strings.HasPrefix(lower, "traceroute") && len(fields) > 1:
		return fmt.Sprintf("Tracing the route to %s\n  1 %s 1 msec 1 msec 1 msec", fields[1], fields[1])
	case strings.HasPrefix(lower, "hostname ") && len(fields) == 2:
		d.Hostname = fields[1]
		return ""
	case lower == "disable" || lower == "dis" || lower == "enable" || lower == "en":
		return ""
	case strings.HasPrefix(lower, "show "):
		return "% Invalid input detected at '^' marker."
	default:
		d.Running = append(d.Running, cmd)
		return ""
	}
}

func runningConfig(d *Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "hostname %s\n!\n", d.Hostname)
	for _, it := range d.Interfaces {
		fmt.Fprintf(&b, "interface %s\n", it.Name)
		if it.IP != "" {
			fmt.Fprintf(&b, " ip address %s\n", it.IP)
		} else {
			b.WriteString(" no ip address\n")
		}
		b.WriteString("!\n")
	}
	for _, line := range d.Running {
		b.WriteString(line + "\n")
	}
	b.WriteString("end")
	return b.String()
}

func interfaceBrief(d *Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-22s %-15s %s", "Interface", "IP-Address", "Status")
	for _, it := range d.Interfaces {
		ip := it.IP
		if ip == "" {
			ip = "unassigned"
		} else if addr, _, ok := strings.Cut(ip, "/"); ok {
			ip = addr
		}
		fmt.Fprintf(&b, "\n%-22s %-15s %s", it.Name, ip, "up")
	}
	return b.String()
}
