// Package main provides the entry point for the soclog CLI application.
package main

import (
	"os"

	"soclog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
