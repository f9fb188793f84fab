// cmd/engram is the entry point for the engram memory engine: an MCP
// server over stdin/stdout plus maintenance commands for the data
// directory it serves.
package main

import (
	"os"

	"github.com/scrypster/engram/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
