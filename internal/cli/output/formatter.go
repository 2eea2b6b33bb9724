// Package output renders API responses for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/getsimpletool/mcpo-simple-server/internal/api"
)

// PrintServerTable renders a server list as a table.
func PrintServerTable(servers []api.ServerInfo) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Name", "Status", "PID", "Uptime", "Tools"}),
	)
	for _, s := range servers {
		pid := "-"
		if s.PID != nil {
			pid = strconv.Itoa(*s.PID)
		}
		table.Append([]string{s.Name, colorStatus(s.Status), pid,
			fmt.Sprintf("%ds", s.UptimeSeconds), strconv.Itoa(s.ToolCount)})
	}
	table.Render()
}

func colorStatus(status string) string {
	switch status {
	case "running":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "starting", "stopping":
		return color.YellowString(status)
	}
	return status
}

// PrintJSON renders any value as indented JSON.
func PrintJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// PrintError renders an error in red on stderr.
func PrintError(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
}
