// Package kit implements the curated-visibility projection a Gateway
// serves: which downstream servers are assigned to a kit, and which of
// their tools are currently enabled.
package kit

import "sync"

// Kit is a named, independently toggleable view over a subset of the
// downstream registry. It holds no I/O of its own — Composer and Gateway
// read and mutate it directly, so all its methods are safe for concurrent
// use via an internal RWMutex.
type Kit struct {
	mu sync.RWMutex

	name    string
	enabled bool

	// assignedServers lists the downstream servers this kit has been
	// explicitly narrowed to. An empty set disables the assignment filter
	// entirely — every seeded server/tool is visible, the legacy "no
	// assignment = whole world" behavior a freshly created kit starts in.
	// The first explicit assignment switches the kit into opt-in mode.
	assignedServers []string
	serversEnabled  map[string]bool
	toolsEnabled    map[string]bool

	// serverToolsHierarchy maps a server name to the control names of the
	// tools it contributed; UnassignServer uses it to drop those tools, and
	// it is persisted with the kit's assignment.
	serverToolsHierarchy map[string][]string
	// toolServerMap maps a tool control name back to its owning server.
	toolServerMap map[string]string
}

// New returns a Kit named name, enabled by default and with nothing
// assigned yet.
func New(name string) *Kit {
	return &Kit{
		name:                 name,
		enabled:              true,
		serversEnabled:       make(map[string]bool),
		toolsEnabled:         make(map[string]bool),
		serverToolsHierarchy: make(map[string][]string),
		toolServerMap:        make(map[string]string),
	}
}

// Name returns the kit's name.
func (k *Kit) Name() string {
	return k.name
}

// EnableKit enables the whole kit.
func (k *Kit) EnableKit() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = true
}

// DisableKit disables the whole kit. A disabled kit's gateway reports an
// empty tool list and rejects every call without contacting any downstream
// server.
func (k *Kit) DisableKit() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = false
}

// Enabled reports whether the kit as a whole is enabled.
func (k *Kit) Enabled() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enabled
}

// AssignServer makes serverName's tools (identified by toolControlNames)
// available to this kit and enables the server by default, mirroring
// assign_mcp_server's auto-enable behavior.
func (k *Kit) AssignServer(serverName string, toolControlNames []string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.assignedServers {
		if existing == serverName {
			return
		}
	}
	k.assignedServers = append(k.assignedServers, serverName)
	k.serversEnabled[serverName] = true

	hierarchy := make([]string, len(toolControlNames))
	copy(hierarchy, toolControlNames)
	k.serverToolsHierarchy[serverName] = hierarchy
	for _, controlName := range toolControlNames {
		k.toolServerMap[controlName] = serverName
		if _, exists := k.toolsEnabled[controlName]; !exists {
			k.toolsEnabled[controlName] = true
		}
	}
}

// UnassignServer removes serverName and every one of its tools from this
// kit's visibility, mirroring unassign_mcp_server.
func (k *Kit) UnassignServer(serverName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, existing := range k.assignedServers {
		if existing == serverName {
			k.assignedServers = append(k.assignedServers[:i], k.assignedServers[i+1:]...)
			break
		}
	}
	delete(k.serversEnabled, serverName)
	for _, controlName := range k.serverToolsHierarchy[serverName] {
		delete(k.toolsEnabled, controlName)
		delete(k.toolServerMap, controlName)
	}
	delete(k.serverToolsHierarchy, serverName)
}

// SeedAll populates every server and tool the registry currently knows
// about, each set to enabled, without touching assignedServers —
// this is create_server_kit's legacy "no assignment = whole world"
// behavior: until a server is explicitly assigned, the assignment filter
// stays off (see assignmentAllowsLocked) and everything seeded here stays
// visible.
func (k *Kit) SeedAll(serverTools map[string][]string, enabled bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for serverName, toolControlNames := range serverTools {
		k.serversEnabled[serverName] = enabled
		hierarchy := make([]string, len(toolControlNames))
		copy(hierarchy, toolControlNames)
		k.serverToolsHierarchy[serverName] = hierarchy
		for _, controlName := range toolControlNames {
			k.toolServerMap[controlName] = serverName
			k.toolsEnabled[controlName] = enabled
		}
	}
}

// assignmentAllowsLocked reports whether serverName passes this kit's
// assignment filter. An empty assignedServers list disables the filter
// entirely (the legacy "no assignment = whole world" behavior); once any
// server has been explicitly assigned, only assigned servers pass.
func (k *Kit) assignmentAllowsLocked(serverName string) bool {
	if len(k.assignedServers) == 0 {
		return true
	}
	for _, existing := range k.assignedServers {
		if existing == serverName {
			return true
		}
	}
	return false
}

// IsServerAssigned reports whether serverName is assigned to this kit.
func (k *Kit) IsServerAssigned(serverName string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, existing := range k.assignedServers {
		if existing == serverName {
			return true
		}
	}
	return false
}

// ListAssignedServers returns the servers assigned to this kit.
func (k *Kit) ListAssignedServers() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.assignedServers))
	copy(out, k.assignedServers)
	return out
}

// EnableServer enables an already-assigned server within this kit.
func (k *Kit) EnableServer(serverName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.serversEnabled[serverName] = true
}

// DisableServer disables a server within this kit without unassigning it;
// its tools stop appearing in ListEnabledToolControlNames but remain
// configured, so re-enabling restores exactly the prior tool policy.
func (k *Kit) DisableServer(serverName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.serversEnabled[serverName] = false
}

// EnableTool enables one tool by control name.
func (k *Kit) EnableTool(controlName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.toolsEnabled[controlName] = true
}

// DisableTool disables one tool by control name.
func (k *Kit) DisableTool(controlName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.toolsEnabled[controlName] = false
}

// ListEnabledToolControlNames returns the control names currently visible
// through this kit: the kit itself must be enabled, the tool's owning
// server must be enabled and pass the assignment filter (see
// assignmentAllowsLocked), and the tool itself must be enabled.
func (k *Kit) ListEnabledToolControlNames() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.enabled {
		return nil
	}

	var out []string
	for controlName, enabled := range k.toolsEnabled {
		if !enabled {
			continue
		}
		serverName, ok := k.toolServerMap[controlName]
		if !ok || !k.serversEnabled[serverName] || !k.assignmentAllowsLocked(serverName) {
			continue
		}
		out = append(out, controlName)
	}
	return out
}

// IsToolVisible reports whether controlName is currently callable through
// this kit: the kit is enabled, the tool's owning server is enabled and
// passes the assignment filter, and the tool itself is enabled. Gateway call handlers use this
// to enforce policy live, on every call, instead of at registration time.
func (k *Kit) IsToolVisible(controlName string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.enabled {
		return false
	}
	if !k.toolsEnabled[controlName] {
		return false
	}
	serverName, ok := k.toolServerMap[controlName]
	if !ok {
		return false
	}
	return k.serversEnabled[serverName] && k.assignmentAllowsLocked(serverName)
}

// Snapshot is a plain-data copy of a Kit's assignment state, used for
// configuration persistence and the admin HTTP API.
type Snapshot struct {
	Name                 string
	Enabled              bool
	AssignedServers      []string
	ServersEnabled       map[string]bool
	ToolsEnabled         map[string]bool
	ServerToolsHierarchy map[string][]string
	ToolServerMap        map[string]string
}

// Snapshot copies the kit's current state out for persistence or display.
func (k *Kit) Snapshot() Snapshot {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s := Snapshot{
		Name:                 k.name,
		Enabled:              k.enabled,
		AssignedServers:      append([]string(nil), k.assignedServers...),
		ServersEnabled:       make(map[string]bool, len(k.serversEnabled)),
		ToolsEnabled:         make(map[string]bool, len(k.toolsEnabled)),
		ServerToolsHierarchy: make(map[string][]string, len(k.serverToolsHierarchy)),
		ToolServerMap:        make(map[string]string, len(k.toolServerMap)),
	}
	for name, v := range k.serversEnabled {
		s.ServersEnabled[name] = v
	}
	for name, v := range k.toolsEnabled {
		s.ToolsEnabled[name] = v
	}
	for server, tools := range k.serverToolsHierarchy {
		s.ServerToolsHierarchy[server] = append([]string(nil), tools...)
	}
	for tool, server := range k.toolServerMap {
		s.ToolServerMap[tool] = server
	}
	return s
}

// Restore replaces a Kit's state with a previously captured Snapshot, used
// when loading configuration at startup.
func Restore(s Snapshot) *Kit {
	k := New(s.Name)
	k.enabled = s.Enabled
	k.assignedServers = append([]string(nil), s.AssignedServers...)
	for name, v := range s.ServersEnabled {
		k.serversEnabled[name] = v
	}
	for name, v := range s.ToolsEnabled {
		k.toolsEnabled[name] = v
	}
	for server, tools := range s.ServerToolsHierarchy {
		k.serverToolsHierarchy[server] = append([]string(nil), tools...)
	}
	for tool, server := range s.ToolServerMap {
		k.toolServerMap[tool] = server
	}
	return k
}
