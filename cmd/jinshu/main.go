package main

import (
	"os"

	"github.com/jinshu-im/jinshu/cmd/jinshu/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
