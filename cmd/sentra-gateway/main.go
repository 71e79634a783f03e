// Package main provides the entry point for the sentra-gateway CLI.
package main

import (
	"os"

	"github.com/sentra-ai/sentra-gateway/cmd/sentra-gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
