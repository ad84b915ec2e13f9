// Package main is the entry point for the novaclaw CLI.
package main

import (
	"os"

	"github.com/NovaClaw/NovaClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
