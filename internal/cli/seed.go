package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/coopdesk/internal/seed"
	"github.com/spec-kit/coopdesk/internal/wire"
)

// SeedCmd upserts a hierarchy fixture.
func SeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load organizations, cities, agents and auto-decline flags from YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixture, err := seed.LoadFile(file)
			if err != nil {
				return err
			}

			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			app, err := wire.Build(cmd.Context(), cfg, logger, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if !app.Postgres.Enabled() {
				warnf(out, "POSTGRES_DSN not set; the fixture only validates against an in-memory store")
			}

			res, err := fixture.Apply(cmd.Context(), app.Repos, time.Now().UTC())
			if err != nil {
				return err
			}
			okf(out, "seeded %d organizations, %d cities, %d agents, %d escalation settings",
				res.Organizations, res.Cities, res.Agents, res.Settings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
