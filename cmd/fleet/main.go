package main

import (
	"os"

	"github.com/hunterwarburton/solfleet/cmd/fleet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
