package cmd

import (
	"errors"
	"os"

	"github.com/giantswarm/mcp-composer/internal/apierrors"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigError indicates the configuration document could not be
	// loaded or was malformed.
	ExitCodeConfigError = 2
)

// rootCmd represents the base command for the mcp-composer application.
// It is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcp-composer",
	Short: "Compose and expose downstream MCP servers as curated kits",
	Long: `mcp-composer multiplexes one or more downstream MCP tool servers
(stdio or SSE/streamable-HTTP) and re-exposes them as independently
configurable "kits" — named virtual MCP servers, each with its own
HTTP/SSE endpoint and its own enable/disable policy over servers and
tools.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcp-composer version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var corrupt *apierrors.CorruptConfigError
	if errors.As(err, &corrupt) {
		return ExitCodeConfigError
	}

	return ExitCodeError
}

// init adds subcommands to the root command.
func init() {
	rootCmd.AddCommand(newVersionCmd())
}
