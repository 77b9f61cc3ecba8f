package labclient

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/martinsuchenak/labconsole/internal/model"
)

// Devices lists the lab's devices.
func (c *Client) Devices(ctx context.Context, labID string) ([]model.DeviceSummary, error) {
	var resp struct {
		Result
		Devices []model.DeviceSummary `json:"devices"`
	}
	status, err := c.doJSON(ctx, "devices", http.MethodGet, labPath(labID, "devices"), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &BackendError{Status: status, Message: resp.Message()}
	}
	return resp.Devices, nil
}

// DeviceConfig fetches the hostname and interfaces of a device.
func (c *Client) DeviceConfig(ctx context.Context, labID, device string) (*model.DeviceConfig, error) {
	var resp struct {
		Result
		Hostname   string            `json:"hostname"`
		Interfaces []model.Interface `json:"interfaces"`
	}
	status, err := c.doJSON(ctx, "device_config", http.MethodGet, labPath(labID, "device", device, "config"), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &BackendError{Status: status, Message: resp.Message()}
	}
	return &model.DeviceConfig{Hostname: resp.Hostname, Interfaces: resp.Interfaces}, nil
}

type saveConfigRequest struct {
	Hostname   string          `json:"hostname"`
	Interfaces []interfaceBody `json:"interfaces"`
}

type interfaceBody struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// SaveDeviceConfig replaces the device's hostname and interface list.
func (c *Client) SaveDeviceConfig(ctx context.Context, labID, device string, cfg model.DeviceConfig) (*Result, error) {
	body := saveConfigRequest{Hostname: cfg.Hostname, Interfaces: make([]interfaceBody, 0, len(cfg.Interfaces))}
	for _, it := range cfg.Interfaces {
		body.Interfaces = append(body.Interfaces, interfaceBody{Name: it.Name, IP: it.IP})
	}
	return c.post(ctx, "device_config_save", labPath(labID, "device", device, "config"), body)
}

// CommandRequest is a terminal submission.
type CommandRequest struct {
	Command  string `json:"command"`
	Password string `json:"password"`
}

// CommandResponse is the backend's answer to a terminal submission.
type CommandResponse struct {
	Success          bool   `json:"success"`
	Output           string `json:"output"`
	Authenticated    *bool  `json:"authenticated,omitempty"`
	RequiresPassword bool   `json:"requires_password,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Command runs a command on a device.
func (c *Client) Command(ctx context.Context, labID, device string, req CommandRequest) (*CommandResponse, error) {
	var resp CommandResponse
	if _, err := c.doJSON(ctx, "command", http.MethodPost, labPath(labID, "device", device, "command"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type topologyResponse struct {
	Result
	Nodes []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Title string `json:"title"`
		Group string `json:"group"`
	} `json:"nodes"`
	Edges     []model.TopologyEdge       `json:"edges"`
	Positions map[string]json.RawMessage `json:"positions"`
}

// Topology fetches the lab graph. Edges without an id get the fallback id
// and a default cost; position entries that are not coordinates are ignored.
func (c *Client) Topology(ctx context.Context, labID string) (*model.Topology, error) {
	var resp topologyResponse
	status, err := c.doJSON(ctx, "topology", http.MethodGet, labPath(labID, "topology"), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &BackendError{Status: status, Message: resp.Message()}
	}

	topo := &model.Topology{
		Nodes:     make([]model.TopologyNode, 0, len(resp.Nodes)),
		Edges:     resp.Edges,
		Positions: make(map[string]model.Position),
	}
	for id, raw := range resp.Positions {
		var p struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if json.Unmarshal(raw, &p) != nil || p.X == nil || p.Y == nil {
			continue
		}
		topo.Positions[id] = model.Position{X: *p.X, Y: *p.Y}
	}
	for _, n := range resp.Nodes {
		node := model.TopologyNode{ID: n.ID, Label: n.Label, Title: n.Title, Group: model.ParseDeviceKind(n.Group)}
		if node.Label == "" {
			node.Label = n.ID
		}
		if p, ok := topo.Positions[n.ID]; ok {
			node.Position = &p
		}
		topo.Nodes = append(topo.Nodes, node)
	}
	if topo.Edges == nil {
		topo.Edges = []model.TopologyEdge{}
	}
	for i := range topo.Edges {
		topo.Edges[i].Normalize(i)
	}
	return topo, nil
}

// SaveTopologyRequest is the full edge set plus node positions.
type SaveTopologyRequest struct {
	Edges     []model.TopologyEdge      `json:"edges"`
	Positions map[string]model.Position `json:"positions"`
}

// SaveTopology persists the edge set and positions. A nil positions map is
// sent as an empty object.
func (c *Client) SaveTopology(ctx context.Context, labID string, req SaveTopologyRequest) (*Result, error) {
	if req.Edges == nil {
		req.Edges = []model.TopologyEdge{}
	}
	if req.Positions == nil {
		req.Positions = map[string]model.Position{}
	}
	return c.post(ctx, "topology_save", labPath(labID, "topology"), req)
}

// BrowseResponse is the content served to a PC for a hostname.
type BrowseResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Browse resolves host from the given PC.
func (c *Client) Browse(ctx context.Context, labID, device, host string) (*BrowseResponse, error) {
	var resp BrowseResponse
	status, err := c.doJSON(ctx, "browse", http.MethodPost, labPath(labID, "pc", device, "browse"), map[string]string{"host": host}, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		resp.Success = false
	}
	return &resp, nil
}

// AddDNSRecord maps host to response in the lab's DNS.
func (c *Client) AddDNSRecord(ctx context.Context, labID, host, response string) (*Result, error) {
	return c.post(ctx, "dns", labPath(labID, "dns"), map[string]string{"host": host, "response": response})
}

// ProgressInProgress is the status sent by autosave.
const ProgressInProgress = "In Progress"

// SaveProgress stores the lab transcript snapshot.
func (c *Client) SaveProgress(ctx context.Context, labID, config, status string) error {
	res, err := c.post(ctx, "save", labPath(labID, "save"), map[string]string{"config": config, "status": status})
	if err != nil {
		return err
	}
	return res.Err()
}
