package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getsimpletool/mcpo-simple-server/internal/cli/output"
)

var callCmd = &cobra.Command{
	Use:   "call <server> <tool> [json-arguments]",
	Short: "Invoke a tool on one of your servers",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		toolArgs := map[string]any{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &toolArgs); err != nil {
				output.PrintError(fmt.Errorf("arguments must be a JSON object: %w", err))
				os.Exit(1)
			}
		}

		content, err := newClient().CallTool(args[0], args[1], toolArgs)
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		output.PrintJSON(content)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Obtain a bearer token",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		token, err := newClient().Login(args[0], args[1])
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		fmt.Println(token)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch server logs (admin only)",
	Run: func(cmd *cobra.Command, args []string) {
		logs, err := newClient().GetLogs()
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		if jsonOutput {
			output.PrintJSON(logs)
			return
		}
		for _, entry := range logs {
			fmt.Printf("[%s] [%s] %s\n", entry.Timestamp, entry.Level, entry.Message)
		}
	},
}

func init() {
	rootCmd.AddCommand(callCmd, loginCmd, logsCmd)
}
