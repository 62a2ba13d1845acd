// Package main provides the entry point for the kotoba CLI.
package main

import (
	"os"

	"github.com/kotoba-ai/kotoba/cmd/kotoba/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
