// Package gateway turns one Kit into a runnable MCP server: it owns the
// mark3labs/mcp-go server.MCPServer and server.SSEServer for a kit's HTTP
// endpoint, and keeps the universe of registered tools in sync with the
// downstream registry while enforcing the kit's live enable/disable policy
// on every call.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/kit"
	"github.com/giantswarm/mcp-composer/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	sseEndpoint        = "/sse"
	messageEndpoint    = "/messages"
	keepAliveInterval  = 30 * time.Second
)

// Gateway serves one Kit as an independent MCP server over SSE. Its kit
// field is a non-owning reference shared with the Composer's kit map —
// the Gateway never copies it, so kit mutations made through the admin API
// are visible to the gateway on the very next request.
type Gateway struct {
	mu sync.Mutex

	kitName  string
	kit      *kit.Kit
	registry *downstream.Registry

	mcpServer *mcpserver.MCPServer
	sseServer *mcpserver.SSEServer

	// registered tracks which control names currently have a handler
	// registered on mcpServer, so Sync only issues AddTools/DeleteTools for
	// the actual delta against the registry's current tool universe.
	registered map[string]bool
}

// New builds a Gateway for k, backed by registry for tool data and call
// dispatch. Call Setup before serving any request.
func New(k *kit.Kit, registry *downstream.Registry) *Gateway {
	return &Gateway{
		kitName:    k.Name(),
		kit:        k,
		registry:   registry,
		registered: make(map[string]bool),
	}
}

// Setup creates the underlying MCP server and SSE transport, and performs
// an initial Sync against the registry's current tool universe.
func (g *Gateway) Setup(baseURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mcpServer = mcpserver.NewMCPServer(
		"mcp-composer-"+g.kitName,
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithToolFilter(g.listToolsFilter),
	)

	g.sseServer = mcpserver.NewSSEServer(
		g.mcpServer,
		mcpserver.WithBaseURL(baseURL),
		mcpserver.WithSSEEndpoint(sseEndpoint),
		mcpserver.WithMessageEndpoint(messageEndpoint),
		mcpserver.WithKeepAlive(true),
		mcpserver.WithKeepAliveInterval(keepAliveInterval),
	)

	g.syncLocked()
}

// KitName returns the name of the kit this gateway serves.
func (g *Gateway) KitName() string {
	return g.kitName
}

// HTTPHandler returns the handler to mount at "/{kitName}/" — it exposes
// sseEndpoint and messageEndpoint relative to wherever the caller mounts
// it.
func (g *Gateway) HTTPHandler() http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sseServer
}

// listToolsFilter is the WithToolFilter callback: it ignores the input
// list entirely and recomputes live, on every call, which control names
// the kit currently has enabled. This is what lets kit-level
// enable/disable/assign/unassign take effect without re-registering
// anything on mcpServer.
func (g *Gateway) listToolsFilter(ctx context.Context, _ []mcp.Tool) []mcp.Tool {
	enabled := g.kit.ListEnabledToolControlNames()
	out := make([]mcp.Tool, 0, len(enabled))
	for _, controlName := range enabled {
		tool, err := g.registry.GetToolByControlName(controlName)
		if err != nil {
			// The kit enables a tool the registry does not hold (its server
			// was never added or has been removed); skip rather than surface
			// a stale entry.
			continue
		}
		out = append(out, mcp.Tool{
			Name:        tool.ControlName,
			Description: tool.Description,
			InputSchema: toInputSchema(tool.InputSchema),
		})
	}
	return out
}

func toInputSchema(schema any) mcp.ToolInputSchema {
	if s, ok := schema.(mcp.ToolInputSchema); ok {
		return s
	}
	return mcp.ToolInputSchema{Type: "object"}
}

// Sync resyncs the set of registered control names against the registry's
// current tool universe. Call it whenever a downstream server is added to
// or removed from the registry — kit-only policy changes never need it,
// since listToolsFilter and the call handler both read kit state live.
func (g *Gateway) Sync() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncLocked()
}

func (g *Gateway) syncLocked() {
	if g.mcpServer == nil {
		return
	}

	universe := g.registry.GetAllTools()
	want := make(map[string]downstream.Tool, len(universe))
	for _, tool := range universe {
		want[tool.ControlName] = tool
	}

	var toAdd []mcpserver.ServerTool
	for controlName, tool := range want {
		if g.registered[controlName] {
			continue
		}
		toAdd = append(toAdd, mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        tool.ControlName,
				Description: tool.Description,
				InputSchema: toInputSchema(tool.InputSchema),
			},
			Handler: g.callToolHandler(tool.ControlName),
		})
		g.registered[controlName] = true
	}

	var toRemove []string
	for controlName := range g.registered {
		if _, stillExists := want[controlName]; !stillExists {
			toRemove = append(toRemove, controlName)
			delete(g.registered, controlName)
		}
	}

	if len(toAdd) > 0 {
		g.mcpServer.AddTools(toAdd...)
	}
	if len(toRemove) > 0 {
		g.mcpServer.DeleteTools(toRemove...)
	}
	logging.Debug("gateway", "kit %q synced: %d added, %d removed, %d total control names", g.kitName, len(toAdd), len(toRemove), len(g.registered))
}

// callToolHandler builds the handler registered for controlName. Policy is
// evaluated live on every invocation, not baked in at registration time:
// a kit or server disabled after registration rejects the call without
// ever reaching the downstream session.
func (g *Gateway) callToolHandler(controlName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !g.kit.IsToolVisible(controlName) {
			return mcp.NewToolResultError("tool is disabled for this kit"), nil
		}

		args := map[string]any{}
		if req.Params.Arguments != nil {
			if m, ok := req.Params.Arguments.(map[string]any); ok {
				args = m
			}
		}

		result, err := g.registry.CallTool(ctx, controlName, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}

// CallTool is a direct entry point that bypasses the MCP transport (tests
// use it); it applies the same live kit policy check as the registered
// handler.
func (g *Gateway) CallTool(ctx context.Context, controlName string, args map[string]any) (*mcp.CallToolResult, error) {
	if !g.kit.IsToolVisible(controlName) {
		return nil, &apierrors.NotReadyError{ResourceType: "tool", ResourceName: controlName, State: "disabled"}
	}
	return g.registry.CallTool(ctx, controlName, args)
}

// ListTools is a direct entry point mirroring listToolsFilter, used by
// tests without going through the MCP transport.
func (g *Gateway) ListTools(ctx context.Context) []mcp.Tool {
	return g.listToolsFilter(ctx, nil)
}
