// Package app wires together the configuration store, downstream registry,
// composer, and HTTP surfaces into one runnable process, and owns the
// signal-driven graceful-shutdown sequence.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giantswarm/mcp-composer/internal/composer"
	"github.com/giantswarm/mcp-composer/internal/configstore"
	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/httpapi"
	"github.com/giantswarm/mcp-composer/internal/kit"
	"github.com/giantswarm/mcp-composer/pkg/logging"
)

// defaultKitName is the kit created automatically when the configuration
// document has no persisted kit assignments at all — a fresh deployment
// gets one gateway exposing every configured downstream server, rather
// than zero gateways (which Composer would refuse to remove anyway, but
// there would be nothing to remove it from).
const defaultKitName = "default"

// Config is the boot-time configuration read from the environment by
// cmd/serve.go.
type Config struct {
	ConfigPath string
	ProxyURL   string
	Host       string
	Port       string
}

// Application owns every long-lived component and the HTTP server that
// serves both the admin API and the gateway surface built from them.
type Application struct {
	cfg       Config
	store     *configstore.Manager
	registry  *downstream.Registry
	composer  *composer.Composer
	admin     *httpapi.Server
	startedAt time.Time

	adminServer   *http.Server
	gatewayServer *http.Server
}

// New loads the configuration document, dials every downstream server it
// names, restores or migrates kit assignments, and mounts a gateway for
// every kit. It does not start serving HTTP yet — call Run for that.
func New(cfg Config) (*Application, error) {
	startedAt := time.Now()

	store := configstore.New(cfg.ConfigPath)
	doc, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	registry := downstream.NewRegistry()
	if err := registry.InitializeAll(context.Background(), doc.ServerSpecs()); err != nil {
		_ = registry.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize downstream servers: %w", err)
	}

	comp := composer.New(registry, cfg.ProxyURL, store)

	if err := restoreKits(comp, store, doc); err != nil {
		_ = registry.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to restore kit assignments: %w", err)
	}

	admin := httpapi.New(comp, startedAt)
	admin.SetReady(true)

	return &Application{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		composer:  comp,
		admin:     admin,
		startedAt: startedAt,
	}, nil
}

// restoreKits populates comp's kit map from doc's persisted assignments,
// seeding a single default kit (with a gateway over every registered
// server) when the document has none yet, mirroring migrate_kits' legacy
// upgrade path.
func restoreKits(comp *composer.Composer, store *configstore.Manager, doc configstore.Document) error {
	if len(doc.ServerKitAssignments) == 0 {
		if _, err := comp.CreateKit(defaultKitName, true); err != nil {
			return err
		}
		// CreateKit already seeded every registered server/tool, enabled and
		// unassigned, so the default kit starts in "no assignment = whole
		// world" mode and needs no explicit per-server assignment here.
		if _, err := comp.AddGateway(defaultKitName); err != nil {
			return err
		}
		return nil
	}

	kits := make(map[string]*kit.Kit, len(doc.ServerKitAssignments))
	for name, assignment := range doc.ServerKitAssignments {
		kits[name] = configstore.RestoreKit(name, assignment, true)
	}
	if err := store.MigrateExistingKits(kits); err != nil {
		return err
	}

	for name, k := range kits {
		if err := comp.InsertKit(k); err != nil {
			return err
		}
		if _, err := comp.AddGateway(name); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the HTTP server, with the admin API mounted at /api/v1 and the
// gateway surface at /mcp, and blocks until ctx is canceled or the
// process receives SIGINT/SIGTERM, then shuts everything down gracefully.
func (a *Application) Run(ctx context.Context) error {
	addr := a.cfg.Host + ":" + a.cfg.Port

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", a.admin.Handler()))
	mux.Handle("/mcp/", http.StripPrefix("/mcp", a.composer.Handler()))

	a.adminServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("app", "listening on %s (proxy url %s)", addr, a.cfg.ProxyURL)
		if err := a.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigCh:
		logging.Info("app", "shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP server and every downstream session.
func (a *Application) Shutdown(ctx context.Context) error {
	logging.Info("app", "shutting down")

	var shutdownErr error
	if a.adminServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.adminServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
	}

	if err := a.registry.Shutdown(ctx); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}
