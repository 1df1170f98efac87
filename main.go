// Package main provides the entry point for the bidoor application.
package main

import (
	"os"

	"github.com/ethpandaops/bidoor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
