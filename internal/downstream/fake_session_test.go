package downstream

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// fakeSession is a minimal in-memory Session used to exercise Registry
// without dialing a real downstream transport.
type fakeSession struct {
	name        string
	tools       []Tool
	state       State
	shutdownErr error
	calls       []string
}

func newFakeSession(name string, toolNames ...string) *fakeSession {
	tools := make([]Tool, 0, len(toolNames))
	for _, tn := range toolNames {
		tools = append(tools, Tool{ServerName: name, Name: tn, ControlName: ControlName(name, tn)})
	}
	return &fakeSession{name: name, tools: tools, state: StateReady}
}

func (f *fakeSession) Initialize(ctx context.Context) error { return nil }
func (f *fakeSession) Tools() []Tool                        { return f.tools }
func (f *fakeSession) Name() string                         { return f.name }
func (f *fakeSession) State() State                          { return f.state }

func (f *fakeSession) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, toolName)
	return &mcp.CallToolResult{}, nil
}

func (f *fakeSession) Shutdown(ctx context.Context) error {
	f.state = StateShutdown
	return f.shutdownErr
}
