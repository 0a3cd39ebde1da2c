package main

import (
	"os"

	"pqchat/cmd/pqchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
