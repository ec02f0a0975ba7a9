// Package configstore persists the set of configured downstream MCP
// servers and kit assignments to a single JSON document on disk, with the
// same backup-rename-on-save discipline as the ConfigurationManager this
// package is ported from.
package configstore

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/kit"
	"github.com/giantswarm/mcp-composer/pkg/logging"
)

// ServerEntry is one downstream server's persisted configuration.
type ServerEntry struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// KitAssignment is one kit's persisted assignment and policy state.
type KitAssignment struct {
	AssignedServers          []string            `json:"assigned_servers"`
	ServersEnabled           map[string]bool     `json:"servers_enabled"`
	ToolsEnabled             map[string]bool     `json:"tools_enabled"`
	ServersToolsHierarchyMap map[string][]string `json:"servers_tools_hierarchy_map"`
	ToolsServersMap          map[string]string   `json:"tools_servers_map"`
}

// Document is the full persisted configuration document.
type Document struct {
	MCPServers           map[string]ServerEntry   `json:"mcpServers"`
	ServerKitAssignments map[string]KitAssignment `json:"serverKitAssignments"`
}

func emptyDocument() Document {
	return Document{
		MCPServers:           make(map[string]ServerEntry),
		ServerKitAssignments: make(map[string]KitAssignment),
	}
}

// Manager guards the configuration document at Path with a single mutation
// lock, taken for the entire load-modify-save critical section of every
// mutating method, mirroring the original's asyncio.Lock-per-operation
// design.
type Manager struct {
	mu   sync.Mutex
	Path string
}

// New returns a Manager for the document at path.
func New(path string) *Manager {
	return &Manager{Path: path}
}

// Load reads the configuration document, returning an empty Document (not
// an error) if the file does not exist yet — a fresh deployment has no
// configuration to load.
func (m *Manager) Load() (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() (Document, error) {
	data, err := os.ReadFile(m.Path)
	if os.IsNotExist(err) {
		logging.Warn("configstore", "configuration file not found: %s", m.Path)
		return emptyDocument(), nil
	}
	if err != nil {
		return Document{}, &apierrors.PersistenceError{Op: "load", Path: m.Path, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, &apierrors.CorruptConfigError{Path: m.Path, Err: err}
	}
	if doc.MCPServers == nil {
		doc.MCPServers = make(map[string]ServerEntry)
	}
	if doc.ServerKitAssignments == nil {
		doc.ServerKitAssignments = make(map[string]KitAssignment)
	}
	return doc, nil
}

// Save writes doc to Path, first renaming any existing file to Path+".bak"
// so a failed write can be rolled back rather than losing the prior
// document.
func (m *Manager) Save(doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(doc)
}

// writeFile is the write step of saveLocked; tests replace it to simulate a
// write failure after the backup rename.
var writeFile = os.WriteFile

func (m *Manager) saveLocked(doc Document) error {
	backupPath := m.Path + ".bak"

	if _, err := os.Stat(m.Path); err == nil {
		if err := os.Rename(m.Path, backupPath); err != nil {
			return &apierrors.PersistenceError{Op: "save", Path: m.Path, Err: err}
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &apierrors.PersistenceError{Op: "save", Path: m.Path, Err: err}
	}

	if err := writeFile(m.Path, data, 0644); err != nil {
		if _, statErr := os.Stat(backupPath); statErr == nil {
			if renameErr := os.Rename(backupPath, m.Path); renameErr == nil {
				logging.Info("configstore", "restored configuration from backup after failed save")
			}
		}
		return &apierrors.PersistenceError{Op: "save", Path: m.Path, Err: err}
	}

	logging.Info("configstore", "configuration saved to %s", m.Path)
	return nil
}

// AddMCPServer persists a new downstream server entry, rejecting a name
// that already exists in the document.
func (m *Manager) AddMCPServer(spec downstream.ServerSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadLocked()
	if err != nil {
		return err
	}

	if _, exists := doc.MCPServers[spec.Name]; exists {
		return apierrors.NewDownstreamServerConflictError(spec.Name)
	}

	doc.MCPServers[spec.Name] = ServerEntry{
		Command: spec.Command,
		Args:    spec.Args,
		Env:     spec.Env,
		URL:     spec.URL,
		Headers: spec.Headers,
	}
	return m.saveLocked(doc)
}

// RemoveMCPServer deletes a downstream server entry and prunes every kit
// assignment that referenced it: the server name is removed from
// assigned_servers and servers_enabled, and every tool whose control name
// is prefixed "{serverName}-" is removed from tools_enabled. The
// hierarchy and tool-to-server maps are left untouched on removal — they
// are overwritten wholesale the next time UpdateKitAssignments writes the
// kit, not pruned incrementally. MigrateExistingKits does not rewrite them
// for a kit that already has an entry.
func (m *Manager) RemoveMCPServer(serverName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadLocked()
	if err != nil {
		return err
	}

	if _, exists := doc.MCPServers[serverName]; !exists {
		return apierrors.NewDownstreamServerNotFoundError(serverName)
	}
	delete(doc.MCPServers, serverName)

	prefix := serverName + downstream.ControlNameSeparator
	for kitName, assignment := range doc.ServerKitAssignments {
		assignment.AssignedServers = removeString(assignment.AssignedServers, serverName)
		delete(assignment.ServersEnabled, serverName)
		for toolName := range assignment.ToolsEnabled {
			if strings.HasPrefix(toolName, prefix) {
				delete(assignment.ToolsEnabled, toolName)
			}
		}
		doc.ServerKitAssignments[kitName] = assignment
	}

	return m.saveLocked(doc)
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// UpdateKitAssignments overwrites the persisted assignment for one kit with
// its current in-memory state.
func (m *Manager) UpdateKitAssignments(snapshot kit.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadLocked()
	if err != nil {
		return err
	}

	doc.ServerKitAssignments[snapshot.Name] = assignmentFromSnapshot(snapshot)
	return m.saveLocked(doc)
}

// LoadKitAssignments returns the persisted assignment document for every
// kit, keyed by kit name.
func (m *Manager) LoadKitAssignments() (map[string]KitAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadLocked()
	if err != nil {
		return nil, err
	}
	return doc.ServerKitAssignments, nil
}

// MigrateExistingKits ensures every kit in kits has a persisted assignment
// entry: kits already present in the document are restored from it in
// place (via Restore semantics applied by the caller); kits with no
// existing entry are seeded from their current in-memory state and
// written back, mirroring migrate_existing_server_kits.
func (m *Manager) MigrateExistingKits(kits map[string]*kit.Kit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadLocked()
	if err != nil {
		return err
	}

	needsSave := false
	for name, k := range kits {
		if _, exists := doc.ServerKitAssignments[name]; exists {
			continue
		}
		doc.ServerKitAssignments[name] = assignmentFromSnapshot(k.Snapshot())
		needsSave = true
		logging.Info("configstore", "migrated kit %q with %d assigned servers", name, len(k.ListAssignedServers()))
	}

	if !needsSave {
		return nil
	}
	return m.saveLocked(doc)
}

func assignmentFromSnapshot(s kit.Snapshot) KitAssignment {
	return KitAssignment{
		AssignedServers:          s.AssignedServers,
		ServersEnabled:           s.ServersEnabled,
		ToolsEnabled:             s.ToolsEnabled,
		ServersToolsHierarchyMap: s.ServerToolsHierarchy,
		ToolsServersMap:          s.ToolServerMap,
	}
}

// RestoreKit builds a *kit.Kit named name from its persisted assignment, if
// any; it returns a freshly created, unassigned kit otherwise.
func RestoreKit(name string, assignment KitAssignment, enabled bool) *kit.Kit {
	snapshot := kit.Snapshot{
		Name:                 name,
		Enabled:              enabled,
		AssignedServers:      assignment.AssignedServers,
		ServersEnabled:       assignment.ServersEnabled,
		ToolsEnabled:         assignment.ToolsEnabled,
		ServerToolsHierarchy: assignment.ServersToolsHierarchyMap,
		ToolServerMap:        assignment.ToolsServersMap,
	}
	return kit.Restore(snapshot)
}

// ServerSpecs converts the document's mcpServers entries into
// downstream.ServerSpec values, inferring transport from which fields are
// populated: a URL means SSE/streamable-HTTP, a Command means stdio. An
// entry with neither field is malformed and cannot be dialed; it is skipped
// with a warning rather than handed to the registry, so one bad entry in
// the document doesn't abort the rest of startup.
func (d Document) ServerSpecs() []downstream.ServerSpec {
	names := make([]string, 0, len(d.MCPServers))
	for name := range d.MCPServers {
		names = append(names, name)
	}
	specs := make([]downstream.ServerSpec, 0, len(names))
	for _, name := range names {
		entry := d.MCPServers[name]
		if entry.Command == "" && entry.URL == "" {
			logging.Warn("configstore", "skipping mcp server %q: missing both command and url", name)
			continue
		}
		spec := downstream.ServerSpec{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			URL:     entry.URL,
			Headers: entry.Headers,
		}
		if entry.URL != "" {
			spec.Transport = downstream.TransportSSE
		} else {
			spec.Transport = downstream.TransportStdio
		}
		specs = append(specs, spec)
	}
	return specs
}
