// Package httpapi implements the admin REST surface mounted at /api/v1:
// kit and gateway CRUD/toggle operations, downstream server management, and
// health/readiness/startup probes. It never touches a downstream transport
// directly — every mutation goes through a composer.Composer method, which
// is also where apierrors values originate.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
	"github.com/giantswarm/mcp-composer/internal/composer"
	"github.com/giantswarm/mcp-composer/pkg/logging"
)

// Server exposes the composer's admin operations over HTTP. The zero value
// is not usable; construct with New.
type Server struct {
	composer  *composer.Composer
	startedAt time.Time
	ready     atomic.Bool
}

// New returns a Server for c. startedAt is the process start time, used by
// the startup probe's uptime check.
func New(c *composer.Composer, startedAt time.Time) *Server {
	return &Server{composer: c, startedAt: startedAt}
}

// SetReady marks the server ready for traffic; call it once downstream
// initialization has completed. Before this call, /health/ready and
// /health/startup report 503.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler builds the admin mux. Routes use Go 1.22 ServeMux method and
// wildcard patterns, since nothing in the dependency surface this project
// draws from brings in a third-party HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleLive)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("GET /health/startup", s.handleStartup)

	mux.HandleFunc("GET /kits", s.handleListKits)
	mux.HandleFunc("GET /kits/{name}", s.handleGetKit)
	mux.HandleFunc("POST /kits/{name}/enable", s.handleToggleKit(true))
	mux.HandleFunc("POST /kits/{name}/disable", s.handleToggleKit(false))
	mux.HandleFunc("POST /kits/{name}/servers/{sn}/enable", s.handleToggleServer(true))
	mux.HandleFunc("POST /kits/{name}/servers/{sn}/disable", s.handleToggleServer(false))
	mux.HandleFunc("POST /kits/{name}/tools/{tn}/enable", s.handleToggleTool(true))
	mux.HandleFunc("POST /kits/{name}/tools/{tn}/disable", s.handleToggleTool(false))
	mux.HandleFunc("GET /kits/{name}/mcp", s.handleKitAssignedServers)

	mux.HandleFunc("GET /gateways", s.handleListGateways)
	mux.HandleFunc("GET /gateways/{name}", s.handleGetGateway)
	mux.HandleFunc("POST /gateways", s.handleAddGateway)
	mux.HandleFunc("DELETE /gateways/{name}", s.handleRemoveGateway)

	mux.HandleFunc("GET /mcp", s.handleListServers)
	mux.HandleFunc("POST /mcp", s.handleAddServer)
	mux.HandleFunc("GET /mcp/available", s.handleAvailableServers)
	mux.HandleFunc("GET /mcp/{name}", s.handleGetServer)
	mux.HandleFunc("GET /mcp/{name}/status", s.handleGetServerStatus)
	mux.HandleFunc("GET /mcp/{name}/dependencies", s.handleGetServerDependencies)
	mux.HandleFunc("DELETE /mcp/{name}", s.handleRemoveServer)

	mux.HandleFunc("POST /kits/{kn}/mcp/{sn}/assign", s.handleAssign)
	mux.HandleFunc("POST /kits/{kn}/mcp/{sn}/unassign", s.handleUnassign)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("httpapi", err, "failed to encode response body")
	}
}

// writeError maps the apierrors taxonomy to the status codes spec.md §7
// specifies; an error of an unrecognized type maps to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apierrors.IsNotFound(err):
		status = http.StatusNotFound
	case apierrors.IsConflict(err), apierrors.IsDependencyViolation(err), apierrors.IsValidation(err):
		status = http.StatusBadRequest
	case apierrors.IsNotReady(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.Error("httpapi", err, "unhandled error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
