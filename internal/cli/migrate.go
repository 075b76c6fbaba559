package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/coopdesk/internal/persistence"
)

// MigrateCmd applies pending SQL migrations.
func MigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			if !pg.Enabled() {
				return errors.New("POSTGRES_DSN is required to migrate")
			}

			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			applied, err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				okf(out, "schema up to date")
				return nil
			}
			for _, name := range applied {
				okf(out, "applied %s", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default POSTGRES_MIGRATIONS_DIR)")
	return cmd
}
