package labtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/model"
)

// Handler serves the lab API for a Backend.
type Handler struct {
	backend *Backend
}

// NewHandler creates a new API handler
func NewHandler(b *Backend) *Handler {
	return &Handler{backend: b}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lab/{lab}/devices", h.listDevices)
	mux.HandleFunc("GET /api/lab/{lab}/topology", h.getTopology)
	mux.HandleFunc("POST /api/lab/{lab}/topology", h.saveTopology)
	mux.HandleFunc("POST /api/lab/{lab}/device/{device}/command", h.executeCommand)
	mux.HandleFunc("GET /api/lab/{lab}/device/{device}/config", h.getDeviceConfig)
	mux.HandleFunc("POST /api/lab/{lab}/device/{device}/config", h.setDeviceConfig)
	mux.HandleFunc("POST /api/lab/{lab}/pc/{device}/browse", h.browse)
	mux.HandleFunc("POST /api/lab/{lab}/dns", h.addDNS)
	mux.HandleFunc("POST /api/lab/{lab}/save", h.saveProgress)
}

func (h *Handler) lab(w http.ResponseWriter, r *http.Request) (*Lab, bool) {
	l, ok := h.backend.Lab(r.PathValue("lab"))
	if !ok {
		http.NotFound(w, r)
	}
	return l, ok
}

// listDevices handles GET /api/lab/{lab}/devices
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	l.mu.Lock()
	devices := make([]model.DeviceSummary, 0, len(l.devices))
	for _, d := range l.devices {
		devices = append(devices, model.DeviceSummary{Name: d.Name, Type: d.Type, Vendor: d.Vendor, Model: d.Model})
	}
	l.mu.Unlock()
	h.writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// getTopology handles GET /api/lab/{lab}/topology
func (h *Handler) getTopology(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	type node struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Group string `json:"group"`
		Title string `json:"title"`
	}
	nodes := make([]node, 0, len(l.devices))
	for _, d := range l.devices {
		nodes = append(nodes, node{ID: d.Name, Label: d.Name, Group: strings.ToLower(d.Type), Title: d.Vendor + " " + d.Model})
	}
	edges := l.edges
	if edges == nil {
		edges = []model.TopologyEdge{}
	}
	var positions any
	if len(l.positions) > 0 {
		positions = l.positions
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "edges": edges, "positions": positions})
}

// saveTopology handles POST /api/lab/{lab}/topology
func (h *Handler) saveTopology(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	var req struct {
		Edges     []model.TopologyEdge      `json:"edges"`
		Positions map[string]model.Position `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Edges == nil {
		h.writeError(w, http.StatusBadRequest, "edges list required")
		return
	}

	l.mu.Lock()
	l.edges = req.Edges
	// An empty positions object resets the layout.
	if req.Positions != nil {
		l.positions = req.Positions
	}
	l.mu.Unlock()

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "edges": req.Edges, "positions": req.Positions})
}

// executeCommand handles POST /api/lab/{lab}/device/{device}/command
func (h *Handler) executeCommand(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	name := r.PathValue("device")

	var req struct {
		Command  string `json:"command"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.device(name)
	if d == nil {
		http.NotFound(w, r)
		return
	}
	l.commands = append(l.commands, req.Command)

	authenticated := l.auth[name]
	cmd := strings.ToLower(strings.TrimSpace(req.Command))
	requiresAuth := model.ParseDeviceKind(d.Type).RequiresEnable()

	if requiresAuth && !authenticated {
		switch {
		case cmd == "enable" || cmd == "en":
			if req.Password == EnablePassword {
				l.auth[name] = true
				h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": "", "device": name, "authenticated": true})
				return
			}
			resp := map[string]any{"success": false, "device": name, "authenticated": false, "requires_password": true}
			if req.Password != "" {
				resp["output"] = "% Access denied"
			}
			h.writeJSON(w, http.StatusOK, resp)
			return
		case strings.HasPrefix(cmd, "ping") || strings.HasPrefix(cmd, "traceroute"):
			h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": simulate(d, req.Command), "device": name, "authenticated": false})
			return
		default:
			h.writeJSON(w, http.StatusOK, map[string]any{
				"success":       false,
				"output":        "% Access denied. Use 'enable' to enter privileged mode.",
				"device":        name,
				"authenticated": false,
			})
			return
		}
	}

	output := simulate(d, req.Command)
	if (cmd == "disable" || cmd == "dis") && authenticated {
		l.auth[name] = false
		authenticated = false
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": output, "device": name, "authenticated": authenticated})
}

// getDeviceConfig handles GET /api/lab/{lab}/device/{device}/config
func (h *Handler) getDeviceConfig(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.device(r.PathValue("device"))
	if d == nil {
		http.NotFound(w, r)
		return
	}
	interfaces := d.Interfaces
	if interfaces == nil {
		interfaces = []model.Interface{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"device": d.Name, "hostname": d.Hostname, "interfaces": interfaces})
}

// setDeviceConfig handles POST /api/lab/{lab}/device/{device}/config
func (h *Handler) setDeviceConfig(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	var req struct {
		Hostname   string             `json:"hostname"`
		Interfaces *[]json.RawMessage `json:"interfaces"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "interfaces must be a list")
		return
	}

	var validated []model.Interface
	if req.Interfaces != nil {
		var errs []string
		for idx, raw := range *req.Interfaces {
			var it model.Interface
			if err := json.Unmarshal(raw, &it); err != nil {
				errs = append(errs, fmt.Sprintf("interface at index %d must be an object", idx))
				continue
			}
			name := strings.TrimSpace(it.Name)
			ip := strings.TrimSpace(it.IP)
			if name == "" {
				errs = append(errs, fmt.Sprintf("interface at index %d missing name", idx))
			}
			norm, addr, network, err := normalizeIP(ip)
			if err != nil {
				label := name
				if label == "" {
					label = fmt.Sprint(idx)
				}
				errs = append(errs, fmt.Sprintf("interface %q has invalid ip %q", label, ip))
			}
			validated = append(validated, model.Interface{Name: name, IP: norm, Address: addr, Network: network})
		}
		if len(errs) > 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": errs})
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.device(r.PathValue("device"))
	if d == nil {
		http.NotFound(w, r)
		return
	}
	if req.Interfaces != nil {
		d.Interfaces = validated
	}
	if req.Hostname != "" {
		d.Hostname = req.Hostname
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "device": d.Name, "hostname": d.Hostname})
}

// normalizeIP returns the interface form (addr/prefix), the address and
// the network of ip. A bare address is treated as a /32.
func normalizeIP(ip string) (norm, addr, network string, err error) {
	if ip == "" {
		return "", "", "", nil
	}
	if !strings.Contains(ip, "/") {
		ip += "/32"
	}
	p, err := netip.ParsePrefix(ip)
	if err != nil || !p.Addr().Is4() {
		return ip, "", "", fmt.Errorf("invalid ip %q", ip)
	}
	return p.String(), p.Addr().String(), p.Masked().String(), nil
}

// browse handles POST /api/lab/{lab}/pc/{device}/browse
func (h *Handler) browse(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	var req struct {
		Host string `json:"host"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	host := strings.TrimSpace(req.Host)
	if host == "" {
		h.writeError(w, http.StatusBadRequest, "host required")
		return
	}
	l.mu.Lock()
	content, found := l.dns[host]
	l.mu.Unlock()
	if !found {
		h.writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

// addDNS handles POST /api/lab/{lab}/dns
func (h *Handler) addDNS(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	var req struct {
		Host     string `json:"host"`
		Response string `json:"response"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	host := strings.TrimSpace(req.Host)
	if host == "" {
		h.writeError(w, http.StatusBadRequest, "host required")
		return
	}
	l.AddDNS(host, req.Response)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// saveProgress handles POST /api/lab/{lab}/save
func (h *Handler) saveProgress(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lab(w, r)
	if !ok {
		return
	}
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l.mu.Lock()
	if v, ok := req["config"]; ok {
		l.progress.Config = v
	}
	if v, ok := req["status"]; ok {
		l.progress.Status = v
	}
	l.progress.Saves++
	l.mu.Unlock()
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": message})
}
