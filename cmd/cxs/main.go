package main

import (
	"os"

	"github.com/bnema/codex-switch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
