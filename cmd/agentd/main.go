package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/agentd/cmd/agentd/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var argsErr *commands.ArgsParseError
		if errors.As(err, &argsErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
