// Package main provides the entry point for the CLIO CLI.
package main

import (
	"fmt"
	"os"

	"github.com/clio-agent/clio/cmd/clio/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
