package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/getsimpletool/mcpo-simple-server/internal/cli/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your MCP servers",
	Run: func(cmd *cobra.Command, args []string) {
		servers, err := newClient().ListServers()
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		if jsonOutput {
			output.PrintJSON(servers)
			return
		}
		output.PrintServerTable(servers)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show one server's status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newClient().ServerStatus(args[0])
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		if jsonOutput {
			output.PrintJSON(status)
			return
		}
		color.Cyan("Server %s:", args[0])
		for _, key := range []string{"status", "pid", "uptime_seconds", "tool_count"} {
			fmt.Printf("  %-15s %v\n", key+":", status[key])
		}
	},
}

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a configured server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newClient().StartServer(args[0])
		printLifecycle(info.Name, info.Status, err)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newClient().StopServer(args[0])
		printLifecycle(info.Name, info.Status, err)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newClient().RestartServer(args[0])
		printLifecycle(info.Name, info.Status, err)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Stop a server and remove its configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := newClient().DeleteServer(args[0]); err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
}

var addCmd = &cobra.Command{
	Use:   "add <config.json>",
	Short: "Register a server from a config.json style file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			output.PrintError(fmt.Errorf("invalid config file: %w", err))
			os.Exit(1)
		}

		info, err := newClient().AddServer(doc)
		if err != nil {
			output.PrintError(err)
			os.Exit(1)
		}
		if jsonOutput {
			output.PrintJSON(info)
			return
		}
		fmt.Printf("Added %s (status %s)\n", info.Name, info.Status)
	},
}

func printLifecycle(name, status string, err error) {
	if err != nil {
		output.PrintError(err)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", name, status)
}

func init() {
	rootCmd.AddCommand(listCmd, statusCmd, startCmd, stopCmd, restartCmd, deleteCmd, addCmd)
}
