package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// versionCheckTimeout bounds how long the version command waits for a
// running composer to answer its health endpoint.
const versionCheckTimeout = 5 * time.Second

// newVersionCmd creates the Cobra command for displaying the application
// version. The command prints the CLI's build-time version and, if a
// composer happens to be running at the configured proxy URL, its reported
// health status as well.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mcp-composer",
		Long:  `Displays the mcp-composer CLI version and, if a composer is running, its health status.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcp-composer version %s\n", rootCmd.Version)

			status, err := getServerHealth()
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nServer: (not running)\n")
				return
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nServer: %s\n", status)
		},
	}
}

// getServerHealth probes the /api/v1/health/live endpoint of a composer
// reachable at the configured proxy URL.
func getServerHealth() (string, error) {
	endpoint := proxyURLFromEnv() + "/api/v1/health/live"

	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	return body.Status, nil
}
