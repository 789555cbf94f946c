// Package main provides the CLI entry point for zen.
package main

import (
	"fmt"
	"os"

	"github.com/zenhq/zen/internal/cmd"
)

// Version is the current version of zen.
const Version = "0.1.0"

func main() {
	rootCmd := cmd.NewRootCommand(Version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
