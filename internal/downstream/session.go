package downstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/pkg/logging"

	"github.com/google/uuid"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const initializeTimeout = 10 * time.Second

const protocolVersion = "2024-11-05"

// Session is a live connection to one downstream MCP server. stdioSession
// backs the stdio transport and sseSession backs both HTTP transports, but
// callers only ever see this interface.
type Session interface {
	// Initialize dials the downstream server, performs the MCP handshake,
	// and caches its tool list.
	Initialize(ctx context.Context) error
	// Tools returns the tool list cached at Initialize time.
	Tools() []Tool
	// CallTool invokes a downstream tool by its original (non-control) name.
	CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)
	// Shutdown closes the underlying transport. Safe to call more than once.
	Shutdown(ctx context.Context) error
	// State reports the session's current lifecycle stage.
	State() State
	// Name returns the downstream server name this session was built for.
	Name() string
}

// baseSession holds the state and behavior shared by every transport: the
// underlying mcp-go client, the cached tool list, and the lifecycle state
// machine. Concrete session types embed it and only supply how to dial.
type baseSession struct {
	mu    sync.RWMutex
	name  string
	label Transport
	state State

	// sessionID correlates this session's log lines across its lifetime;
	// it has no meaning outside this process's logs.
	sessionID string

	client mcpclient.MCPClient
	tools  []Tool
}

func (b *baseSession) Name() string { return b.name }

func (b *baseSession) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *baseSession) Tools() []Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Tool, len(b.tools))
	copy(out, b.tools)
	return out
}

// finishInitialize performs the handshake and tool caching common to every
// transport, once dial has produced a connected mcpclient.MCPClient.
func (b *baseSession) finishInitialize(ctx context.Context, dialed mcpclient.MCPClient) error {
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, initializeTimeout)
		defer cancel()
	}

	_, err := dialed.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-composer",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = dialed.Close()
		b.mu.Lock()
		b.state = StateFailed
		b.mu.Unlock()
		return &apierrors.TransportError{ServerName: b.name, Transport: string(b.transportLabel()), Err: err}
	}

	listResult, err := dialed.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = dialed.Close()
		b.mu.Lock()
		b.state = StateFailed
		b.mu.Unlock()
		return &apierrors.ProtocolError{ServerName: b.name, Message: fmt.Sprintf("list_tools failed: %v", err)}
	}

	tools := make([]Tool, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		tools = append(tools, Tool{
			ServerName:  b.name,
			Name:        t.Name,
			ControlName: ControlName(b.name, t.Name),
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	b.mu.Lock()
	b.client = dialed
	b.tools = tools
	b.state = StateReady
	b.mu.Unlock()

	logging.Info("downstream", "session %s initialized for %q: %d tools", b.sessionID, b.name, len(tools))
	return nil
}

func (b *baseSession) transportLabel() Transport { return b.label }

func (b *baseSession) callTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state != StateReady || b.client == nil {
		return nil, &apierrors.NotReadyError{ResourceType: "downstream server", ResourceName: b.name, State: string(b.state)}
	}

	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, &apierrors.ProtocolError{ServerName: b.name, Message: fmt.Sprintf("call_tool %q failed: %v", toolName, err)}
	}
	return result, nil
}

func (b *baseSession) shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateShutdown || b.client == nil {
		b.state = StateShutdown
		return nil
	}

	err := b.client.Close()
	b.client = nil
	b.state = StateShutdown
	logging.Debug("downstream", "session %s for %q shut down", b.sessionID, b.name)
	return err
}

// stdioSession is a Session backed by a child process speaking MCP over
// stdin/stdout.
type stdioSession struct {
	baseSession
	command string
	args    []string
	env     map[string]string
}

func newStdioSession(spec ServerSpec) *stdioSession {
	s := &stdioSession{command: spec.Command, args: spec.Args, env: spec.Env}
	s.name = spec.Name
	s.label = TransportStdio
	s.state = StatePending
	s.sessionID = uuid.NewString()
	return s
}

func (s *stdioSession) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	var envStrings []string
	for k, v := range s.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	logging.Debug("downstream", "dialing stdio server %q: %s %v", s.name, s.command, s.args)
	dialed, err := mcpclient.NewStdioMCPClient(s.command, envStrings, s.args...)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return &apierrors.TransportError{ServerName: s.name, Transport: string(TransportStdio), Err: err}
	}

	return s.finishInitialize(ctx, dialed)
}

func (s *stdioSession) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.callTool(ctx, toolName, args)
}

func (s *stdioSession) Shutdown(ctx context.Context) error { return s.shutdown(ctx) }

// sseSession is a Session backed by an HTTP server speaking MCP over
// Server-Sent-Events or streamable-HTTP, depending on spec.Transport.
type sseSession struct {
	baseSession
	url       string
	headers   map[string]string
	transport Transport
}

func newSSESession(spec ServerSpec) *sseSession {
	s := &sseSession{url: spec.URL, headers: spec.Headers, transport: spec.Transport}
	s.name = spec.Name
	s.label = spec.Transport
	s.state = StatePending
	s.sessionID = uuid.NewString()
	return s
}

func (s *sseSession) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	logging.Debug("downstream", "dialing %s server %q: %s", s.transport, s.name, s.url)

	var dialed mcpclient.MCPClient
	var err error
	switch s.transport {
	case TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(s.headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(s.headers))
		}
		dialed, err = mcpclient.NewStreamableHttpClient(s.url, opts...)
	default:
		var opts []transport.ClientOption
		if len(s.headers) > 0 {
			opts = append(opts, transport.WithHeaders(s.headers))
		}
		var sseClient *mcpclient.SSEMCPClient
		sseClient, err = mcpclient.NewSSEMCPClient(s.url, opts...)
		if err == nil {
			err = sseClient.Start(ctx)
		}
		dialed = sseClient
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return &apierrors.TransportError{ServerName: s.name, Transport: string(s.transport), Err: err}
	}

	return s.finishInitialize(ctx, dialed)
}

func (s *sseSession) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.callTool(ctx, toolName, args)
}

func (s *sseSession) Shutdown(ctx context.Context) error { return s.shutdown(ctx) }

// NewSession constructs the concrete Session implementation matching
// spec.Transport. Validate should be called on spec before this.
func NewSession(spec ServerSpec) Session {
	switch spec.Transport {
	case TransportStdio:
		return newStdioSession(spec)
	default:
		return newSSESession(spec)
	}
}
