package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/devconfig"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/martinsuchenak/labconsole/internal/topology"
	"github.com/martinsuchenak/labconsole/internal/validate"
	"github.com/paularlott/mcp"
)

// Server exposes a loaded lab as MCP tools.
type Server struct {
	mcpServer   *mcp.Server
	lab         *app.Lab
	bearerToken string
}

// NewServer creates the tool server for lab.
func NewServer(lab *app.Lab, version, bearerToken string) *Server {
	s := &Server{
		mcpServer:   mcp.NewServer("labconsole", version),
		lab:         lab,
		bearerToken: bearerToken,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	// Devices and terminals

	s.mcpServer.RegisterTool(
		mcp.NewTool("device_list", "List the devices in the lab"),
		s.handleDeviceList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("device_command", "Run a command on a device terminal. While the device is asking for the enable password, the command is sent as the password.",
			mcp.String("device", "Device name", mcp.Required()),
			mcp.String("command", "Command line, e.g. 'show ip interface brief'", mcp.Required()),
		),
		s.handleDeviceCommand,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("device_broadcast", "Run one command on several devices concurrently",
			mcp.String("command", "Command line", mcp.Required()),
			mcp.StringArray("devices", "Devices to run on (default every router, switch and PC)"),
		),
		s.handleBroadcast,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("session_transcript", "Get the full terminal transcript of a device",
			mcp.String("device", "Device name", mcp.Required()),
		),
		s.handleSessionTranscript,
	)

	// Device configuration

	s.mcpServer.RegisterTool(
		mcp.NewTool("device_config_get", "Get a device's hostname and interfaces",
			mcp.String("device", "Device name", mcp.Required()),
		),
		s.handleConfigGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("device_config_save", "Replace a device's interface configuration. Every IP must be a dotted IPv4 address with an optional /0-32 prefix, or empty.",
			mcp.String("device", "Device name", mcp.Required()),
			mcp.String("hostname", "New hostname (unchanged if omitted)"),
			mcp.ObjectArray("interfaces", "Interfaces in order",
				mcp.String("name", "Interface name, e.g. Gi0/0", mcp.Required()),
				mcp.String("ip", "IPv4 address with optional prefix"),
			),
		),
		s.handleConfigSave,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("validate_ip", "Check an interface IP against the lab's address rules",
			mcp.String("ip", "Address to check", mcp.Required()),
		),
		s.handleValidateIP,
	)

	// Topology

	s.mcpServer.RegisterTool(
		mcp.NewTool("topology_get", "Show the lab's devices and links"),
		s.handleTopologyGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("link_add", "Add a link between two devices and save the topology",
			mcp.String("from", "Source device", mcp.Required()),
			mcp.String("to", "Destination device", mcp.Required()),
			mcp.String("label", "Link label"),
			mcp.String("cost", "Positive integer cost (default 1)"),
			mcp.String("src_if", "Source interface name"),
			mcp.String("dst_if", "Destination interface name"),
		),
		s.handleLinkAdd,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("link_delete", "Delete a link and save the topology",
			mcp.String("id", "Link id as shown by topology_get", mcp.Required()),
		),
		s.handleLinkDelete,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("reset_layout", "Forget all saved node positions"),
		s.handleResetLayout,
	)

	// PC browser

	s.mcpServer.RegisterTool(
		mcp.NewTool("pc_browse", "Browse to a lab hostname from a PC",
			mcp.String("device", "PC name", mcp.Required()),
			mcp.String("host", "Hostname", mcp.Required()),
		),
		s.handleBrowse,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("dns_add", "Add a lab DNS record served to every PC",
			mcp.String("host", "Hostname", mcp.Required()),
			mcp.String("response", "Page content for the host"),
		),
		s.handleDNSAdd,
	)
}

// HandleRequest serves MCP over HTTP, checking the bearer token when one
// is configured.
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	log.Debug("MCP request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	if s.bearerToken != "" {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			log.Warn("MCP request missing Authorization header", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized: Invalid Authorization format", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.bearerToken)) != 1 {
			log.Warn("MCP request invalid token", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
	}

	s.mcpServer.HandleRequest(w, r)
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	tools := s.mcpServer.ListTools()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

// LogStartup logs the tool server configuration.
func (s *Server) LogStartup() {
	if s.bearerToken != "" {
		log.Info("MCP authentication enabled", "type", "Bearer token")
	} else {
		log.Info("MCP authentication disabled")
	}
	log.Info("MCP tools registered", "count", len(s.mcpServer.ListTools()), "lab", s.lab.ID())
}

func required(req *mcp.ToolRequest, name string) (string, error) {
	v, err := req.String(name)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", mcp.NewToolErrorInvalidParams(name + " is required")
	}
	return v, nil
}

func (s *Server) handleDeviceList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	return mcp.NewToolResponseText(s.deviceList()), nil
}

func (s *Server) deviceList() string {
	devices := s.lab.Devices()
	if len(devices) == 0 {
		return "No devices found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d devices in lab %s:\n\n", len(devices), s.lab.ID())
	for _, d := range devices {
		fmt.Fprintf(&b, "%-10s %-8s %s %s\n", d.Name, d.Kind(), d.Vendor, d.Model)
	}
	return b.String()
}

func (s *Server) handleDeviceCommand(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	device, err := required(req, "device")
	if err != nil {
		return nil, err
	}
	command, err := req.String("command")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("command is required")
	}
	out, err := s.runCommand(ctx, device, command)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(out), nil
}

func (s *Server) handleBroadcast(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	command, err := required(req, "command")
	if err != nil {
		return nil, err
	}
	devices, _ := req.StringSlice("devices")
	return mcp.NewToolResponseText(s.broadcast(ctx, devices, command)), nil
}

func (s *Server) broadcast(ctx context.Context, devices []string, command string) string {
	var b strings.Builder
	for _, r := range s.lab.Broadcast(ctx, devices, command, 0) {
		fmt.Fprintf(&b, "=== %s ===\n", r.ID)
		if r.Err != nil {
			fmt.Fprintf(&b, "Error: %v\n", r.Err)
			continue
		}
		b.WriteString(r.Output)
		b.WriteString("\n")
	}
	return b.String()
}

// runCommand submits command and returns the lines it produced.
func (s *Server) runCommand(ctx context.Context, device, command string) (string, error) {
	out, err := s.lab.RunCommand(ctx, device, command)
	if err != nil {
		return "", err
	}
	log.Info("MCP command executed", "device", device)
	return out, nil
}

func (s *Server) handleSessionTranscript(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	device, err := required(req, "device")
	if err != nil {
		return nil, err
	}
	tab, err := s.lab.EnsureTab(device)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(tab.Session.Transcript()), nil
}

func (s *Server) handleConfigGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	device, err := required(req, "device")
	if err != nil {
		return nil, err
	}
	out, err := s.configGet(ctx, device)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(out), nil
}

func (s *Server) configGet(ctx context.Context, device string) (string, error) {
	v, err := s.lab.ReadDeviceConfig(ctx, device)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	devconfig.Format(&b, v)
	return b.String(), nil
}

func (s *Server) handleConfigSave(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	device, err := required(req, "device")
	if err != nil {
		return nil, err
	}
	var hostname *string
	if h, err := req.String("hostname"); err == nil {
		hostname = &h
	}
	objs, _ := req.ObjectSlice("interfaces")
	rows := make([]model.Interface, 0, len(objs))
	for i, obj := range objs {
		name, _ := obj["name"].(string)
		ip, _ := obj["ip"].(string)
		if name == "" {
			return nil, mcp.NewToolErrorInvalidParams(fmt.Sprintf("interfaces[%d]: missing name", i))
		}
		rows = append(rows, model.Interface{Name: name, IP: ip})
	}

	if err := s.configSave(ctx, device, hostname, rows); err != nil {
		var verr *devconfig.ValidationError
		if errors.As(err, &verr) {
			return nil, mcp.NewToolErrorInvalidParams(err.Error())
		}
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Configuration saved for %s", device)), nil
}

func (s *Server) configSave(ctx context.Context, device string, hostname *string, rows []model.Interface) error {
	if err := s.lab.ApplyDeviceConfig(ctx, device, hostname, rows); err != nil {
		return err
	}
	log.Info("MCP config saved", "device", device)
	return nil
}

func (s *Server) handleValidateIP(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	ip, err := req.String("ip")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("ip is required")
	}
	return mcp.NewToolResponseText(validateIP(ip)), nil
}

func validateIP(ip string) string {
	if err := validate.IP(ip); err != nil {
		return fmt.Sprintf("%q is invalid: %v", ip, err)
	}
	return fmt.Sprintf("%q is valid", ip)
}

func (s *Server) handleTopologyGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	var b strings.Builder
	if err := topology.Format(&b, s.lab.Topology().Graph()); err != nil {
		return nil, mcp.NewToolErrorInternal(err.Error())
	}
	return mcp.NewToolResponseText(b.String()), nil
}

func (s *Server) handleLinkAdd(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	from, err := required(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := required(req, "to")
	if err != nil {
		return nil, err
	}
	in := topology.LinkInput{
		Label: req.StringOr("label", ""),
		Cost:  req.StringOr("cost", ""),
		SrcIf: req.StringOr("src_if", ""),
		DstIf: req.StringOr("dst_if", ""),
	}
	if err := s.linkAdd(ctx, from, to, in); err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Link %s - %s added", from, to)), nil
}

func (s *Server) linkAdd(ctx context.Context, from, to string, in topology.LinkInput) error {
	ed := s.lab.Topology()
	if err := ed.AddLink(ctx, from, to); err != nil {
		return err
	}
	if err := ed.SaveLink(ctx, in); err != nil {
		ed.CloseLink()
		return err
	}
	return nil
}

func (s *Server) handleLinkDelete(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	id, err := required(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.lab.Topology().DeleteLink(ctx, id); err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Link %s deleted", id)), nil
}

func (s *Server) handleResetLayout(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	if err := s.lab.Topology().ResetLayout(ctx); err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText("Layout reset"), nil
}

func (s *Server) handleBrowse(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	device, err := required(req, "device")
	if err != nil {
		return nil, err
	}
	host, _ := req.String("host")
	b, err := s.lab.Browser(device)
	if err != nil {
		return nil, toolError(err)
	}
	page, err := b.Browse(ctx, host)
	if err != nil {
		return mcp.NewToolResponseText(err.Error()), nil
	}
	return mcp.NewToolResponseText(page), nil
}

func (s *Server) handleDNSAdd(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	host, _ := req.String("host")
	response := req.StringOr("response", "")
	msg, err := s.dnsAdd(ctx, host, response)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(msg), nil
}

// dnsAdd stores a record through the first PC's browser.
func (s *Server) dnsAdd(ctx context.Context, host, response string) (string, error) {
	pc, err := s.lab.FirstPC()
	if err != nil {
		return "", err
	}
	b, err := s.lab.Browser(pc)
	if err != nil {
		return "", err
	}
	return b.AddDNS(ctx, host, response)
}

// toolError maps lookup failures to invalid-params and the rest to
// internal errors.
func toolError(err error) error {
	switch {
	case errors.Is(err, app.ErrUnknownDevice), errors.Is(err, app.ErrNotPC), errors.Is(err, app.ErrNoPC),
		errors.Is(err, topology.ErrUnknownNode), errors.Is(err, topology.ErrUnknownEdge):
		return mcp.NewToolErrorInvalidParams(err.Error())
	default:
		return mcp.NewToolErrorInternal(err.Error())
	}
}
