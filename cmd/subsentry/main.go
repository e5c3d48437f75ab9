package main

import (
	"os"

	"github.com/jask/subsentry/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
