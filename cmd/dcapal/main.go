package main

import (
	"os"

	"github.com/wonny/allocator/cmd/dcapal/commands"
)

// main is the entry point of the dcapal CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/dcapal [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
