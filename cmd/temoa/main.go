// Package main provides the entry point for the temoa CLI.
package main

import (
	"os"

	"github.com/temoa-dev/temoa/cmd/temoa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
