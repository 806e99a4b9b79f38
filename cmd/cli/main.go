// Package main is the entry point for the bff CLI binary.
package main

import (
	"os"

	"agent-bff/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
