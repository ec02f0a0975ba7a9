package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/giantswarm/mcp-composer/internal/app"
	"github.com/giantswarm/mcp-composer/pkg/logging"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveCmd starts the composer: it loads the configuration document,
// initializes every configured downstream MCP server, builds the kit
// gateways, and serves the admin and gateway HTTP surfaces until the
// process receives a shutdown signal.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mcp-composer gateway server",
	Long: `Starts mcp-composer: connects to every downstream MCP server named in
the configuration document, builds one HTTP/SSE gateway per configured
kit, and serves both the gateway surface and the admin API until
interrupted.

Configuration is read from environment variables:
  MCP_SERVERS_CONFIG_PATH  path to the JSON configuration document (required)
  MCP_COMPOSER_PROXY_URL   external base URL this composer is reachable at (default http://localhost:8000)
  HOST                     bind address (default 0.0.0.0)
  PORT                     bind port (default 8000)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	cfg := app.Config{
		ConfigPath: os.Getenv(envConfigPath),
		ProxyURL:   proxyURLFromEnv(),
		Host:       getEnvOrDefault(envHost, defaultHost),
		Port:       getEnvOrDefault(envPort, defaultPort),
	}
	if cfg.ConfigPath == "" {
		return fmt.Errorf("%s is required", envConfigPath)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize composer: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable verbose debug logging")
}
