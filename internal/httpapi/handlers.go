package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/gateway"
	"github.com/giantswarm/mcp-composer/internal/kit"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().Unix()})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "downstream registry not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"timestamp":          time.Now().Unix(),
		"downstream_servers": len(s.composer.Registry().ListAvailableServers()),
		"active_gateways":    len(s.composer.ListGateways()),
	})
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "application still starting up"})
		return
	}
	uptime := time.Since(s.startedAt)
	if uptime < time.Second {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "application startup in progress"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                           "started",
		"timestamp":                        time.Now().Unix(),
		"startup_duration":                 uptime.Seconds(),
		"downstream_servers_initialized": len(s.composer.Registry().ListAvailableServers()),
	})
}

// kitResponse is the wire shape for a Kit, built from its Snapshot.
type kitResponse struct {
	Name            string          `json:"name"`
	Enabled         bool            `json:"enabled"`
	AssignedServers []string        `json:"assigned_servers"`
	ServersEnabled  map[string]bool `json:"servers_enabled"`
	ToolsEnabled    map[string]bool `json:"tools_enabled"`
}

func newKitResponse(k *kit.Kit) kitResponse {
	snap := k.Snapshot()
	return kitResponse{
		Name:            snap.Name,
		Enabled:         snap.Enabled,
		AssignedServers: snap.AssignedServers,
		ServersEnabled:  snap.ServersEnabled,
		ToolsEnabled:    snap.ToolsEnabled,
	}
}

func (s *Server) handleListKits(w http.ResponseWriter, r *http.Request) {
	kits := s.composer.ListKits()
	out := make([]kitResponse, len(kits))
	for i, k := range kits {
		out[i] = newKitResponse(k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetKit(w http.ResponseWriter, r *http.Request) {
	k, err := s.composer.GetKit(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newKitResponse(k))
}

func (s *Server) handleToggleKit(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		var (
			k   *kit.Kit
			err error
		)
		if enable {
			k, err = s.composer.EnableKit(name)
		} else {
			k, err = s.composer.DisableKit(name)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newKitResponse(k))
	}
}

func (s *Server) handleToggleServer(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, server := r.PathValue("name"), r.PathValue("sn")
		var (
			k   *kit.Kit
			err error
		)
		if enable {
			k, err = s.composer.EnableServer(name, server)
		} else {
			k, err = s.composer.DisableServer(name, server)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newKitResponse(k))
	}
}

func (s *Server) handleToggleTool(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, tool := r.PathValue("name"), r.PathValue("tn")
		var (
			k   *kit.Kit
			err error
		)
		if enable {
			k, err = s.composer.EnableTool(name, tool)
		} else {
			k, err = s.composer.DisableTool(name, tool)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newKitResponse(k))
	}
}

// handleKitAssignedServers lists the servers currently assigned to a kit.
func (s *Server) handleKitAssignedServers(w http.ResponseWriter, r *http.Request) {
	k, err := s.composer.GetKit(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, k.ListAssignedServers())
}

// handleAvailableServers lists registry servers not yet assigned to the
// kit named by the "kit" query parameter; with no kit specified it lists
// every registered server, matching /mcp's listing.
func (s *Server) handleAvailableServers(w http.ResponseWriter, r *http.Request) {
	all := s.composer.Registry().ListAvailableServers()

	kitName := r.URL.Query().Get("kit")
	if kitName == "" {
		writeJSON(w, http.StatusOK, all)
		return
	}

	k, err := s.composer.GetKit(kitName)
	if err != nil {
		writeError(w, err)
		return
	}

	var available []string
	for _, name := range all {
		if !k.IsServerAssigned(name) {
			available = append(available, name)
		}
	}
	writeJSON(w, http.StatusOK, available)
}

type gatewayResponse struct {
	Name             string      `json:"name"`
	GatewayEndpoint  string      `json:"gateway_endpoint"`
	ServerKit        kitResponse `json:"server_kit"`
}

func newGatewayResponse(g *gateway.Gateway, proxyURL string, k *kit.Kit) gatewayResponse {
	return gatewayResponse{
		Name:            k.Name(),
		GatewayEndpoint: proxyURL + "/mcp/" + k.Name() + "/sse",
		ServerKit:       newKitResponse(k),
	}
}

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways := s.composer.ListGateways()
	out := make([]gatewayResponse, 0, len(gateways))
	for _, g := range gateways {
		k, err := s.composer.GetKit(g.KitName())
		if err != nil {
			continue
		}
		out = append(out, newGatewayResponse(g, s.composer.ProxyURL(), k))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, err := s.composer.GetGateway(name)
	if err != nil {
		writeError(w, err)
		return
	}
	k, err := s.composer.GetKit(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGatewayResponse(g, s.composer.ProxyURL(), k))
}

type addGatewayRequest struct {
	Name      string `json:"name"`
	ServerKit struct {
		ServersEnabled map[string]bool `json:"servers_enabled"`
		ToolsEnabled   map[string]bool `json:"tools_enabled"`
	} `json:"server_kit"`
}

func (s *Server) handleAddGateway(w http.ResponseWriter, r *http.Request) {
	var req addGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.NewValidationError("body", err.Error()))
		return
	}
	if req.Name == "" {
		writeError(w, apierrors.NewValidationError("name", "must not be empty"))
		return
	}

	k, err := s.composer.CreateKit(req.Name, true)
	if err != nil {
		writeError(w, err)
		return
	}
	for server, enabled := range req.ServerKit.ServersEnabled {
		if enabled {
			k.EnableServer(server)
		} else {
			k.DisableServer(server)
		}
	}
	for tool, enabled := range req.ServerKit.ToolsEnabled {
		if enabled {
			k.EnableTool(tool)
		} else {
			k.DisableTool(tool)
		}
	}

	g, err := s.composer.AddGateway(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGatewayResponse(g, s.composer.ProxyURL(), k))
}

func (s *Server) handleRemoveGateway(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, err := s.composer.GetGateway(name)
	if err != nil {
		writeError(w, err)
		return
	}
	k, err := s.composer.GetKit(name)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := newGatewayResponse(g, s.composer.ProxyURL(), k)

	if err := s.composer.RemoveGateway(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type serverResponse struct {
	Name           string            `json:"name"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	URL            string            `json:"url,omitempty"`
	Status         string            `json:"status"`
	ToolsCount     int               `json:"tools_count"`
	AssignedToKits []string          `json:"assigned_to_kits"`
}

func (s *Server) buildServerResponse(name string) (serverResponse, error) {
	status, err := s.composer.Registry().GetServerStatus(name)
	if err != nil {
		return serverResponse{}, err
	}
	count, _ := s.composer.Registry().GetServerToolsCount(name)

	var assigned []string
	for _, k := range s.composer.ListKits() {
		if k.IsServerAssigned(name) {
			assigned = append(assigned, k.Name())
		}
	}

	return serverResponse{
		Name:           name,
		Status:         string(status),
		ToolsCount:     count,
		AssignedToKits: assigned,
	}, nil
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	names := s.composer.Registry().ListAvailableServers()
	out := make([]serverResponse, 0, len(names))
	for _, name := range names {
		resp, err := s.buildServerResponse(name)
		if err != nil {
			continue
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	resp, err := s.buildServerResponse(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetServerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.composer.Registry().GetServerStatus(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleGetServerDependencies(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.composer.Registry().GetServerByControlName(name); err != nil {
		writeError(w, err)
		return
	}

	assignments := s.composer.KitAssignmentSets()
	dependents := s.composer.Registry().CheckDependencies(name, assignments)
	writeJSON(w, http.StatusOK, map[string]any{
		"server_name":     name,
		"dependent_kits":  dependents,
		"can_be_removed": len(dependents) == 0,
	})
}

type addServerRequest struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	var req addServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.NewValidationError("body", err.Error()))
		return
	}

	spec := downstream.ServerSpec{
		Name:    req.Name,
		Command: req.Command,
		Args:    req.Args,
		Env:     req.Env,
		URL:     req.URL,
		Headers: req.Headers,
	}
	if spec.URL != "" {
		spec.Transport = downstream.TransportSSE
	} else {
		spec.Transport = downstream.TransportStdio
	}

	if err := s.composer.CreateMCPServer(r.Context(), spec); err != nil {
		writeError(w, err)
		return
	}
	resp, _ := s.buildServerResponse(req.Name)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.composer.DeleteMCPServer(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": "removed"})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	k, err := s.composer.AssignServerToKit(r.PathValue("kn"), r.PathValue("sn"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newKitResponse(k))
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	k, err := s.composer.UnassignServerFromKit(r.PathValue("kn"), r.PathValue("sn"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newKitResponse(k))
}
