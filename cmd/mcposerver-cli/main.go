package main

import (
	"os"

	"github.com/getsimpletool/mcpo-simple-server/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
