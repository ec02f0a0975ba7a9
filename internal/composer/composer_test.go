package composer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/configstore"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *configstore.Manager {
	t.Helper()
	return configstore.New(filepath.Join(t.TempDir(), "mcp-servers.json"))
}

// fakeSession is a minimal downstream.Session used to populate the
// registry without dialing a real transport.
type fakeSession struct {
	name  string
	tools []downstream.Tool
}

func newFakeSession(name string, toolNames ...string) *fakeSession {
	tools := make([]downstream.Tool, len(toolNames))
	for i, toolName := range toolNames {
		tools[i] = downstream.Tool{
			ServerName:  name,
			Name:        toolName,
			ControlName: downstream.ControlName(name, toolName),
		}
	}
	return &fakeSession{name: name, tools: tools}
}

func (f *fakeSession) Initialize(context.Context) error { return nil }
func (f *fakeSession) Tools() []downstream.Tool          { return f.tools }
func (f *fakeSession) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (f *fakeSession) Shutdown(context.Context) error { return nil }
func (f *fakeSession) State() downstream.State        { return downstream.StateReady }
func (f *fakeSession) Name() string                   { return f.name }

func TestCreateKit_ConflictOnDuplicate(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)

	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	_, err = c.CreateKit("default", true)
	assert.True(t, apierrors.IsConflict(err))
}

func TestAddGateway_RequiresExistingKit(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)

	_, err := c.AddGateway("missing")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestAddGateway_RegistersGatewayForKit(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	g, err := c.AddGateway("default")
	require.NoError(t, err)
	require.NotNil(t, g)

	fetched, err := c.GetGateway("default")
	require.NoError(t, err)
	assert.Same(t, g, fetched)
}

func TestRemoveGateway_RejectsLastRemaining(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)
	_, err = c.AddGateway("default")
	require.NoError(t, err)

	err = c.RemoveGateway("default")
	assert.True(t, apierrors.IsValidation(err))

	// The gateway must still be mounted after the rejected removal.
	_, err = c.GetGateway("default")
	assert.NoError(t, err)
}

func TestRemoveGateway_AllowsRemovalWhenAnotherRemains(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)
	_, err = c.CreateKit("ops", true)
	require.NoError(t, err)
	_, err = c.AddGateway("default")
	require.NoError(t, err)
	_, err = c.AddGateway("ops")
	require.NoError(t, err)

	require.NoError(t, c.RemoveGateway("ops"))

	_, err = c.GetGateway("ops")
	assert.True(t, apierrors.IsNotFound(err))
	_, err = c.GetGateway("default")
	assert.NoError(t, err)
}

func TestDeleteMCPServer_RejectsWhenKitDependsOnIt(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather")))

	c := New(registry, "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	_, err = c.AssignServerToKit("default", "weather")
	require.NoError(t, err)

	err = c.DeleteMCPServer(context.Background(), "weather")
	assert.True(t, apierrors.IsDependencyViolation(err))
}

func TestAssignServerToKit_PopulatesToolsFromRegistry(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather", "get_forecast")))

	c := New(registry, "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	k, err := c.AssignServerToKit("default", "weather")
	require.NoError(t, err)

	assert.True(t, k.IsServerAssigned("weather"))
	assert.ElementsMatch(t, []string{"weather-get_forecast"}, k.ListEnabledToolControlNames())
}

func TestAssignServerToKit_NotFoundWhenServerUnregistered(t *testing.T) {
	c := New(downstream.NewRegistry(), "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	_, err = c.AssignServerToKit("default", "missing")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestAssignServerToKit_ConflictWhenAlreadyAssigned(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather")))

	c := New(registry, "http://localhost:8000", nil)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	_, err = c.AssignServerToKit("default", "weather")
	require.NoError(t, err)

	_, err = c.AssignServerToKit("default", "weather")
	assert.True(t, apierrors.IsConflict(err))
}

func TestCreateKit_SeedsEveryRegisteredServerAndTool(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("A", "t1", "t2")))
	require.NoError(t, registry.Register(newFakeSession("B", "t1")))

	c := New(registry, "http://localhost:8000", nil)
	k, err := c.CreateKit("fresh", true)
	require.NoError(t, err)

	// A fresh kit has no explicit assignment, so the assignment filter is
	// disabled and every seeded server/tool is visible.
	assert.Empty(t, k.ListAssignedServers())
	assert.ElementsMatch(t, []string{"A-t1", "A-t2", "B-t1"}, k.ListEnabledToolControlNames())
}

func TestCreateKit_ExplicitAssignmentNarrowsVisibility(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("A", "t1", "t2")))
	require.NoError(t, registry.Register(newFakeSession("B", "t1")))

	c := New(registry, "http://localhost:8000", nil)
	_, err := c.CreateKit("fresh", true)
	require.NoError(t, err)

	k, err := c.AssignServerToKit("fresh", "A")
	require.NoError(t, err)

	// Once any server is explicitly assigned, the filter switches on and
	// only assigned servers' tools remain visible.
	assert.ElementsMatch(t, []string{"A-t1", "A-t2"}, k.ListEnabledToolControlNames())
}

func TestAssignServerToKit_PersistsThroughConfigStore(t *testing.T) {
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather", "get_forecast")))
	store := tempStore(t)

	c := New(registry, "http://localhost:8000", store)
	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	_, err = c.AssignServerToKit("default", "weather")
	require.NoError(t, err)

	assignments, err := store.LoadKitAssignments()
	require.NoError(t, err)
	require.Contains(t, assignments, "default")
	assert.Contains(t, assignments["default"].AssignedServers, "weather")
}

// DeleteMCPServer's persistence is exercised without dialing a real
// transport: the store is seeded directly (mirroring what CreateMCPServer
// would have written) and the registry is seeded with a fakeSession, so
// only the removal path — registry.Remove plus store.RemoveMCPServer — is
// under test.
func TestDeleteMCPServer_PersistsThroughConfigStore(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddMCPServer(downstream.ServerSpec{Name: "weather", Command: "weather-server"}))

	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather")))

	c := New(registry, "http://localhost:8000", store)
	require.NoError(t, c.DeleteMCPServer(context.Background(), "weather"))

	doc, err := store.Load()
	require.NoError(t, err)
	assert.NotContains(t, doc.MCPServers, "weather")
}
