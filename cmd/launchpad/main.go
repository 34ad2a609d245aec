package main

import (
	"os"

	"github.com/trufnetwork/launchpad-go/cmd/launchpad/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
