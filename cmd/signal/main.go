package main

import (
	"os"

	"github.com/CoReason-AI/coreason-signal/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
