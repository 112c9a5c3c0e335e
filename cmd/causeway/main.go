package main

import (
	"os"

	"github.com/moolen/causeway/cmd/causeway/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
