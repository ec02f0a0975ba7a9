// Package composer is the top-level orchestrator: it owns the downstream
// registry, every configured Kit, and the Gateway mounted for each Kit,
// and wires HTTP requests for a kit's gateway through to the right mount
// point.
package composer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/configstore"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/gateway"
	"github.com/giantswarm/mcp-composer/internal/kit"
	"github.com/giantswarm/mcp-composer/pkg/logging"
)

// Composer owns the registry of downstream servers, the set of configured
// kits, and the gateway mounted for each. Its mux is rebuilt from scratch on
// every AddGateway/RemoveGateway, since http.ServeMux has no route-removal
// primitive to mirror a single route being unmounted.
type Composer struct {
	mu sync.RWMutex

	proxyURL string
	registry *downstream.Registry
	store    *configstore.Manager
	kits     map[string]*kit.Kit
	gateways map[string]*gateway.Gateway

	mux *http.ServeMux
}

// New returns an empty Composer backed by registry. proxyURL is the base URL
// each gateway advertises to SSE clients for its message endpoint. store is
// the ConfigurationManager every mutating operation persists through; it
// may be nil, in which case mutations apply in memory only (tests that
// don't care about persistence use this).
func New(registry *downstream.Registry, proxyURL string, store *configstore.Manager) *Composer {
	return &Composer{
		proxyURL: proxyURL,
		registry: registry,
		store:    store,
		kits:     make(map[string]*kit.Kit),
		gateways: make(map[string]*gateway.Gateway),
		mux:      http.NewServeMux(),
	}
}

// Registry returns the downstream registry the composer was built with.
func (c *Composer) Registry() *downstream.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving every gateway's SSE endpoint at
// "/{kitName}/". Each request is dispatched to the mux current at that
// moment, so gateways added or removed after the handler was mounted are
// reflected immediately.
func (c *Composer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.RLock()
		mux := c.mux
		c.mu.RUnlock()
		mux.ServeHTTP(w, r)
	})
}

// ListKits returns every configured kit, sorted by name.
func (c *Composer) ListKits() []*kit.Kit {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*kit.Kit, 0, len(c.kits))
	for _, k := range c.kits {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// GetKit returns the kit named name, or a NotFoundError.
func (c *Composer) GetKit(name string) (*kit.Kit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, exists := c.kits[name]
	if !exists {
		return nil, apierrors.NewKitNotFoundError(name)
	}
	return k, nil
}

// CreateKit registers a new kit named name, seeded with every server and
// tool the registry currently knows about, each defaulting to
// defaultEnabled, mirroring create_server_kit's snapshot-at-creation-time
// behavior. Nothing is added to the kit's assigned-servers list here, so
// the kit starts in the legacy "no assignment = whole world" mode: every
// seeded server and tool is visible until a caller narrows visibility with
// an explicit AssignServerToKit.
func (c *Composer) CreateKit(name string, defaultEnabled bool) (*kit.Kit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.kits[name]; exists {
		return nil, apierrors.NewKitConflictError(name)
	}

	k := kit.New(name)
	k.SeedAll(c.serverToolsLocked(), defaultEnabled)
	c.kits[name] = k
	logging.Info("composer", "created kit %q", name)
	return k, nil
}

// serverToolsLocked groups the registry's current tools by owning server,
// keyed by server name, for CreateKit's seeding pass. c.mu need not be held
// for this — it only reads the registry — but the name reflects that it is
// always called from within a method that already holds c.mu.
func (c *Composer) serverToolsLocked() map[string][]string {
	serverTools := make(map[string][]string)
	for _, name := range c.registry.ListAvailableServers() {
		serverTools[name] = nil
	}
	for _, tool := range c.registry.GetAllTools() {
		serverTools[tool.ServerName] = append(serverTools[tool.ServerName], tool.ControlName)
	}
	return serverTools
}

// InsertKit registers an already-built kit (typically restored from a
// configstore.KitAssignment snapshot at startup) under its own name.
func (c *Composer) InsertKit(k *kit.Kit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.kits[k.Name()]; exists {
		return apierrors.NewKitConflictError(k.Name())
	}
	c.kits[k.Name()] = k
	return nil
}

// EnableKit enables kitName as a whole.
func (c *Composer) EnableKit(kitName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.EnableKit()
	return k, nil
}

// DisableKit disables kitName as a whole; its gateway, if mounted, keeps
// serving an empty tool list and rejects every call.
func (c *Composer) DisableKit(kitName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.DisableKit()
	return k, nil
}

// EnableServer enables serverName within kitName.
func (c *Composer) EnableServer(kitName, serverName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.EnableServer(serverName)
	return k, nil
}

// DisableServer disables serverName within kitName without unassigning it.
func (c *Composer) DisableServer(kitName, serverName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.DisableServer(serverName)
	return k, nil
}

// EnableTool enables controlName within kitName.
func (c *Composer) EnableTool(kitName, controlName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.EnableTool(controlName)
	return k, nil
}

// DisableTool disables controlName within kitName.
func (c *Composer) DisableTool(kitName, controlName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.DisableTool(controlName)
	return k, nil
}

// AssignServerToKit assigns serverName (and its current tool set from the
// registry) to kitName. It fails with NotFoundError if serverName is not in
// the registry, and with ConflictError if it is already assigned to this
// kit.
func (c *Composer) AssignServerToKit(kitName, serverName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	if _, err := c.registry.GetServerByControlName(serverName); err != nil {
		return nil, err
	}
	if k.IsServerAssigned(serverName) {
		return nil, &apierrors.ConflictError{ResourceType: "server assignment", ResourceName: serverName}
	}

	var toolControlNames []string
	for _, tool := range c.registry.GetAllTools() {
		if tool.ServerName == serverName {
			toolControlNames = append(toolControlNames, tool.ControlName)
		}
	}
	k.AssignServer(serverName, toolControlNames)
	return k, c.persistKit(k)
}

// UnassignServerFromKit removes serverName from kitName's visibility.
func (c *Composer) UnassignServerFromKit(kitName, serverName string) (*kit.Kit, error) {
	k, err := c.GetKit(kitName)
	if err != nil {
		return nil, err
	}
	k.UnassignServer(serverName)
	return k, c.persistKit(k)
}

// persistKit writes k's current state through the configuration manager. A
// nil store (tests that don't wire one) is a no-op. Per spec, a
// persistence failure is surfaced to the caller as a PersistenceError but
// never rolls back the in-memory mutation that already happened — the
// kit's in-memory state and the document on disk are allowed to diverge
// until the next successful write.
func (c *Composer) persistKit(k *kit.Kit) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.UpdateKitAssignments(k.Snapshot()); err != nil {
		logging.Error("composer", err, "failed to persist kit %q", k.Name())
		return err
	}
	return nil
}

// ListGateways returns every mounted gateway, sorted by kit name.
func (c *Composer) ListGateways() []*gateway.Gateway {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.gateways))
	for name := range c.gateways {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*gateway.Gateway, 0, len(names))
	for _, name := range names {
		out = append(out, c.gateways[name])
	}
	return out
}

// GetGateway returns the gateway mounted for kitName, or a NotFoundError.
func (c *Composer) GetGateway(kitName string) (*gateway.Gateway, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, exists := c.gateways[kitName]
	if !exists {
		return nil, apierrors.NewGatewayNotFoundError(kitName)
	}
	return g, nil
}

// AddGateway builds and mounts a Gateway for kitName, which must already
// exist. It is an error to add a gateway for a kit that already has one.
func (c *Composer) AddGateway(kitName string) (*gateway.Gateway, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.gateways[kitName]; exists {
		return nil, &apierrors.ConflictError{ResourceType: "gateway", ResourceName: kitName}
	}

	k, exists := c.kits[kitName]
	if !exists {
		return nil, apierrors.NewKitNotFoundError(kitName)
	}

	g := gateway.New(k, c.registry)
	g.Setup(fmt.Sprintf("%s/mcp/%s", c.proxyURL, kitName))
	c.gateways[kitName] = g
	c.rebuildMuxLocked()

	logging.Info("composer", "mounted gateway for kit %q", kitName)
	return g, c.persistKit(k)
}

// RemoveGateway unmounts the gateway serving kitName. Removing the last
// remaining gateway is rejected: a composer with zero mounted gateways
// serves nothing, which is never a useful state to persist.
func (c *Composer) RemoveGateway(kitName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.gateways[kitName]; !exists {
		return apierrors.NewGatewayNotFoundError(kitName)
	}
	if len(c.gateways) == 1 {
		return &apierrors.ValidationError{Field: "gateway", Message: "cannot remove the last remaining gateway"}
	}

	delete(c.gateways, kitName)
	c.rebuildMuxLocked()

	logging.Info("composer", "unmounted gateway for kit %q", kitName)
	return nil
}

// rebuildMuxLocked replaces c.mux with a fresh ServeMux reflecting the
// current gateway set. http.ServeMux has no route-removal call, so a
// removal is implemented as "rebuild without the removed entry" rather than
// mutating the existing mux in place.
func (c *Composer) rebuildMuxLocked() {
	mux := http.NewServeMux()
	for kitName, g := range c.gateways {
		mux.Handle("/"+kitName+"/", http.StripPrefix("/"+kitName, g.HTTPHandler()))
	}
	c.mux = mux
}

// CreateMCPServer registers a new downstream server with the registry, then
// resyncs every mounted gateway so the server's tools become addressable
// wherever a kit has already assigned it.
func (c *Composer) CreateMCPServer(ctx context.Context, spec downstream.ServerSpec) error {
	if err := c.registry.Add(ctx, spec); err != nil {
		return err
	}
	c.resyncGateways()

	if c.store != nil {
		if err := c.store.AddMCPServer(spec); err != nil {
			logging.Error("composer", err, "failed to persist mcp server %q", spec.Name)
			return err
		}
	}
	return nil
}

// KitAssignmentSets returns every kit's assigned-server set, keyed by kit
// name, in the shape downstream.Registry.CheckDependencies expects.
func (c *Composer) KitAssignmentSets() map[string]map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	assignments := make(map[string]map[string]bool, len(c.kits))
	for kitName, k := range c.kits {
		assigned := make(map[string]bool)
		for _, server := range k.ListAssignedServers() {
			assigned[server] = true
		}
		assignments[kitName] = assigned
	}
	return assignments
}

// ProxyURL returns the base URL gateways advertise to SSE clients.
func (c *Composer) ProxyURL() string {
	return c.proxyURL
}

// DeleteMCPServer removes a downstream server, refusing if any kit still
// has it assigned.
func (c *Composer) DeleteMCPServer(ctx context.Context, serverName string) error {
	assignments := c.KitAssignmentSets()

	if dependents := c.registry.CheckDependencies(serverName, assignments); len(dependents) > 0 {
		return &apierrors.DependencyViolationError{ResourceName: serverName, DependentOn: dependents}
	}

	if err := c.registry.Remove(ctx, serverName); err != nil {
		return err
	}
	c.resyncGateways()

	if c.store != nil {
		if err := c.store.RemoveMCPServer(serverName); err != nil {
			logging.Error("composer", err, "failed to persist removal of mcp server %q", serverName)
			return err
		}
	}
	return nil
}

func (c *Composer) resyncGateways() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.gateways {
		g.Sync()
	}
}
