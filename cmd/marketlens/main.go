package main

import (
	"os"

	"github.com/wonny/marketlens/backend/cmd/marketlens/commands"
)

// main is the entry point for the marketlens CLI
// ⭐ Single CLI entry point: go run ./cmd/marketlens [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
