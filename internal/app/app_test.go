package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "mcp-servers.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestNew_NoServers_CreatesDefaultKitAndGateway(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ConfigPath: writeConfig(t, dir, `{"mcpServers":{},"serverKitAssignments":{}}`),
		ProxyURL:   "http://localhost:8000",
		Host:       "127.0.0.1",
		Port:       "0",
	}

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	kits := application.composer.ListKits()
	require.Len(t, kits, 1)
	assert.Equal(t, defaultKitName, kits[0].Name())

	_, err = application.composer.GetGateway(defaultKitName)
	assert.NoError(t, err)
}

func TestNew_RestoresPersistedKitAssignments(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ConfigPath: writeConfig(t, dir, `{
			"mcpServers": {},
			"serverKitAssignments": {
				"ops": {
					"assigned_servers": [],
					"servers_enabled": {},
					"tools_enabled": {},
					"servers_tools_hierarchy_map": {},
					"tools_servers_map": {}
				}
			}
		}`),
		ProxyURL: "http://localhost:8000",
		Host:     "127.0.0.1",
		Port:     "0",
	}

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	kits := application.composer.ListKits()
	require.Len(t, kits, 1)
	assert.Equal(t, "ops", kits[0].Name())
}

func TestRun_ShutsDownOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ConfigPath: writeConfig(t, dir, `{"mcpServers":{},"serverKitAssignments":{}}`),
		ProxyURL:   "http://localhost:8000",
		Host:       "127.0.0.1",
		Port:       "0",
	}

	application, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	// Give the listener goroutine a moment to start before canceling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestHandler_AdminAndGatewayMounts(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ConfigPath: writeConfig(t, dir, `{"mcpServers":{},"serverKitAssignments":{}}`),
		ProxyURL:   "http://localhost:8000",
		Host:       "127.0.0.1",
		Port:       "0",
	}

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", application.admin.Handler()))
	mux.Handle("/mcp/", http.StripPrefix("/mcp", application.composer.Handler()))

	req := httptest.NewRequest("GET", "/api/v1/kits", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var kits []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kits))
	require.Len(t, kits, 1)
}
