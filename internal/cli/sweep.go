package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/coopdesk/internal/service"
	"github.com/spec-kit/coopdesk/internal/wire"
)

// SweepCmd runs one escalation sweep against the configured store.
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Escalate every overdue ticket once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			app, err := wire.Build(cmd.Context(), cfg, logger, wire.Options{SkipMigrations: true})
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if !app.Postgres.Enabled() {
				warnf(out, "POSTGRES_DSN not set; sweeping an empty in-memory store")
			}

			summary, err := app.Sweep.Run(cmd.Context())
			if errors.Is(err, service.ErrSweepInProgress) {
				warnf(out, "another sweep holds the lock; nothing done")
				return nil
			}
			if err != nil {
				return err
			}

			okf(out, "sweep finished in %s", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(out, "  scanned:   %d\n", summary.Scanned)
			fmt.Fprintf(out, "  escalated: %d\n", summary.Escalated)
			fmt.Fprintf(out, "  cascaded:  %d\n", summary.Cascaded)
			if summary.Orphaned > 0 {
				fmt.Fprintf(out, "  orphaned:  %s\n", color.New(color.FgYellow).Sprint(summary.Orphaned))
			}
			if summary.Failed > 0 {
				fmt.Fprintf(out, "  failed:    %s\n", color.New(color.FgRed).Sprint(summary.Failed))
			}
			if summary.Truncated {
				warnf(out, "stopped after %d pages before the backlog was drained", summary.Pages)
			}
			return nil
		},
	}
}
