package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/giantswarm/mcp-composer/internal/composer"
	"github.com/giantswarm/mcp-composer/internal/downstream"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	name  string
	tools []downstream.Tool
}

func newFakeSession(name string, toolNames ...string) *fakeSession {
	tools := make([]downstream.Tool, len(toolNames))
	for i, toolName := range toolNames {
		tools[i] = downstream.Tool{ServerName: name, Name: toolName, ControlName: downstream.ControlName(name, toolName)}
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

func newTestServer(t *testing.T) (*Server, *composer.Composer) {
	t.Helper()
	registry := downstream.NewRegistry()
	require.NoError(t, registry.Register(newFakeSession("weather", "get_forecast")))

	c := composer.New(registry, "http://localhost:8000", nil)
	s := New(c, time.Now().Add(-2*time.Second))
	s.SetReady(true)
	return s, c
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/health", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/health/startup", nil).Code)
}

func TestReadyEndpoint_503BeforeReady(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetReady(false)

	rec := doRequest(t, s.Handler(), "GET", "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestKitLifecycle_CreateAssignToggle(t *testing.T) {
	s, c := newTestServer(t)
	h := s.Handler()

	_, err := c.CreateKit("default", true)
	require.NoError(t, err)

	rec := doRequest(t, h, "GET", "/kits/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, "POST", "/kits/default/mcp/weather/assign", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp kitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.AssignedServers, "weather")

	rec = doRequest(t, h, "POST", "/kits/default/servers/weather/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, "GET", "/kits/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayLifecycle_AddAndRemoveLast(t *testing.T) {
	s, c := newTestServer(t)
	h := s.Handler()

	rec := doRequest(t, h, "POST", "/gateways", map[string]any{"name": "default"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, "DELETE", "/gateways/default", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, "POST", "/gateways", map[string]any{"name": "ops"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err := c.GetKit("ops")
	require.NoError(t, err)

	rec = doRequest(t, h, "DELETE", "/gateways/default", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerDependencies_BlocksDeleteWhileAssigned(t *testing.T) {
	s, c := newTestServer(t)
	h := s.Handler()

	_, err := c.CreateKit("default", true)
	require.NoError(t, err)
	_, err = c.AssignServerToKit("default", "weather")
	require.NoError(t, err)

	rec := doRequest(t, h, "GET", "/mcp/weather/dependencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "default")

	rec = doRequest(t, h, "DELETE", "/mcp/weather", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
