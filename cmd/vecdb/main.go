// Command vecdb is the vecdb command-line tool.
//
// Usage:
//
//	vecdb [--config file] <command> [flags]
//
// Commands:
//
//	bench   - Measure recall and latency of approximate indexes against flat search
//	config  - Print the effective configuration
//	version - Print the version number
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/vecdb/cmd/vecdb/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
