// Package main provides the entry point for the source-agent CLI.
package main

import (
	"os"

	"github.com/OxCom/llvm-source-agent/cmd/source-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
