package downstream

import (
	"context"
	"sync"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Registry is the single source of truth for every downstream MCP server a
// composer knows about. It keeps three indices in step under one mutex:
// sessions by server name, tools by control name, and registration order
// (so listings are stable across runs).
type Registry struct {
	mu sync.RWMutex

	sessions          map[string]Session
	toolsByControlName map[string]Tool
	order             []string // server names, in registration order
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:           make(map[string]Session),
		toolsByControlName: make(map[string]Tool),
	}
}

// InitializeAll dials every spec in order, stopping and returning the first
// error. Already-initialized sessions from earlier specs remain registered
// so the caller can decide whether to shut the whole registry down or
// proceed with a partial set.
func (r *Registry) InitializeAll(ctx context.Context, specs []ServerSpec) error {
	for _, spec := range specs {
		if err := r.Add(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// Add validates, dials, and registers one downstream server. It is safe to
// call at any time, not just during startup.
func (r *Registry) Add(ctx context.Context, spec ServerSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.sessions[spec.Name]; exists {
		r.mu.Unlock()
		return apierrors.NewDownstreamServerConflictError(spec.Name)
	}
	r.mu.Unlock()

	session := NewSession(spec)
	if err := session.Initialize(ctx); err != nil {
		return err
	}

	if err := r.register(session); err != nil {
		go session.Shutdown(context.Background())
		return err
	}

	logging.Info("downstream", "registered server %q (%s), %d tools", spec.Name, spec.Transport, len(session.Tools()))
	return nil
}

// Register indexes an already-initialized Session directly, bypassing
// spec validation and dialing. It exists for callers (tests in other
// packages, primarily) that already hold a Session value — e.g. a fake
// implementation — and want it visible to the registry without going
// through Add.
func (r *Registry) Register(session Session) error {
	return r.register(session)
}

// register indexes an already-initialized session. Split out of Add so
// tests can register fake sessions without dialing a real transport.
func (r *Registry) register(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := session.Name()
	if _, exists := r.sessions[name]; exists {
		return apierrors.NewDownstreamServerConflictError(name)
	}

	r.sessions[name] = session
	r.order = append(r.order, name)
	for _, tool := range session.Tools() {
		r.toolsByControlName[tool.ControlName] = tool
	}
	return nil
}

// Remove shuts down and unregisters a downstream server. Callers are
// responsible for checking CheckDependencies first if removal must be
// blocked while kits still reference the server; Remove itself does not
// enforce that policy.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	session, exists := r.sessions[name]
	if !exists {
		r.mu.Unlock()
		return apierrors.NewDownstreamServerNotFoundError(name)
	}

	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for controlName, tool := range r.toolsByControlName {
		if tool.ServerName == name {
			delete(r.toolsByControlName, controlName)
		}
	}
	r.mu.Unlock()

	logging.Info("downstream", "deregistered server %q", name)
	return session.Shutdown(ctx)
}

// ListAvailableServers returns registered server names in registration
// order.
func (r *Registry) ListAvailableServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GetServerStatus reports a server's session state, or NotFoundError if no
// such server is registered. This is an optimistic point-in-time read: it
// reflects the session's last known state, not a live re-probe of the
// downstream process.
func (r *Registry) GetServerStatus(name string) (State, error) {
	r.mu.RLock()
	session, exists := r.sessions[name]
	r.mu.RUnlock()
	if !exists {
		return "", apierrors.NewDownstreamServerNotFoundError(name)
	}
	return session.State(), nil
}

// GetServerToolsCount returns how many tools a registered server
// contributed at initialization time.
func (r *Registry) GetServerToolsCount(name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[name]
	if !exists {
		return 0, apierrors.NewDownstreamServerNotFoundError(name)
	}
	return len(session.Tools()), nil
}

// GetToolByControlName looks up a cached tool by its "{server}-{tool}"
// control name.
func (r *Registry) GetToolByControlName(controlName string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.toolsByControlName[controlName]
	if !exists {
		return Tool{}, apierrors.NewToolNotFoundError(controlName)
	}
	return tool, nil
}

// GetServerByControlName returns the Session registered under name.
func (r *Registry) GetServerByControlName(name string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[name]
	if !exists {
		return nil, apierrors.NewDownstreamServerNotFoundError(name)
	}
	return session, nil
}

// GetAllTools returns every cached tool across every registered server, in
// registration order, each carrying its control name alongside its
// original name. This is the universe Gateways filter down to a kit's
// policy.
func (r *Registry) GetAllTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Tool
	for _, name := range r.order {
		session := r.sessions[name]
		all = append(all, session.Tools()...)
	}
	return all
}

// CheckDependencies reports which kit names (from the supplied
// name -> assigned-server-set map) still reference serverName. It takes a
// plain map rather than importing the kit package, to avoid a dependency
// cycle between downstream and kit.
func (r *Registry) CheckDependencies(serverName string, kitAssignments map[string]map[string]bool) []string {
	var dependents []string
	for kitName, assigned := range kitAssignments {
		if assigned[serverName] {
			dependents = append(dependents, kitName)
		}
	}
	return dependents
}

// CallTool dispatches a call by control name to the owning session.
func (r *Registry) CallTool(ctx context.Context, controlName string, args map[string]any) (*mcp.CallToolResult, error) {
	serverName, toolName, ok := SplitControlName(controlName)
	if !ok {
		return nil, apierrors.NewToolNotFoundError(controlName)
	}

	r.mu.RLock()
	session, exists := r.sessions[serverName]
	r.mu.RUnlock()
	if !exists {
		return nil, apierrors.NewToolNotFoundError(controlName)
	}

	return session.CallTool(ctx, toolName, args)
}

// Shutdown closes every registered session sequentially, in the reverse of
// their registration order — the same unwind-the-stack discipline a child
// process tree expects — collecting the first error (if any) while still
// attempting to close the rest.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, name := range r.order {
		sessions = append(sessions, r.sessions[name])
	}
	r.sessions = make(map[string]Session)
	r.toolsByControlName = make(map[string]Tool)
	r.order = nil
	r.mu.Unlock()

	var firstErr error
	for i := len(sessions) - 1; i >= 0; i-- {
		if err := sessions[i].Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
