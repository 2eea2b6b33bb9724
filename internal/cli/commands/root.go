// Package commands implements the mcposerver-cli command tree.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/getsimpletool/mcpo-simple-server/internal/cli/client"
)

var (
	serverURL  string
	token      string
	apiKey     string
	jsonOutput bool
	timeoutMS  int
)

var rootCmd = &cobra.Command{
	Use:   "mcposerver-cli",
	Short: "Operator CLI for mcpo-simple-server",
	Long: `mcposerver-cli manages MCP server instances on a running
mcpo-simple-server: list and inspect servers, drive their lifecycle, and
invoke tools from the terminal.`,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *client.Client {
	return client.New(serverURL, token, apiKey, time.Duration(timeoutMS)*time.Millisecond)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "mcposerver base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (from login)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (sk-mcpo-...)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().IntVar(&timeoutMS, "timeout", 130000, "request timeout in milliseconds")
}
