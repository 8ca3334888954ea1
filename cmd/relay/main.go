package main

import (
	"os"

	"github.com/relaykit/relay/cli"
	"github.com/relaykit/relay/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"relay",
		"Session lifecycle and telemetry sync for wrapped coding agents",
	)

	// Add subcommands
	rootCmd.AddCommand(cmd.NewHookCmd())
	rootCmd.AddCommand(cmd.NewSyncCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		verbose := false
		for _, arg := range os.Args[1:] {
			if arg == "-v" || arg == "--verbose" {
				verbose = true
			}
		}
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
