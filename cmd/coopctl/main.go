package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/coopdesk/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "coopctl",
		Short:         "Operator tooling for the coopdesk escalation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.SweepCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.SeedCmd())

	// Development helpers
	rootCmd.AddCommand(cli.TokenCmd())
	rootCmd.AddCommand(cli.HashSecretCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
