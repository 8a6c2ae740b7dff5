// Package main is the entry point for the bidharvest CLI.
package main

import (
	"os"

	"github.com/jmylchreest/bidharvest/cmd/bidharvest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
