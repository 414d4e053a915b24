package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/config"
	"github.com/ocrhub/pagetrack/internal/sqlite"
	"github.com/ocrhub/pagetrack/internal/storage"
	"github.com/ocrhub/pagetrack/migrations"
)

// newMigrateCommand applies embedded schema migrations to the configured
// backend.
func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.cfg.OpTimeout)
			defer cancel()

			switch opts.cfg.Backend {
			case config.BackendPostgres:
				db, err := storage.New(ctx, opts.cfg.DatabaseURL, opts.logger)
				if err != nil {
					return err
				}
				defer db.Close(context.Background())
				return db.RunMigrations(ctx, migrations.Postgres)
			case config.BackendSQLite:
				db, err := sqlite.Open(opts.cfg.SQLitePath, opts.logger)
				if err != nil {
					return err
				}
				defer db.Close(context.Background())
				return db.RunMigrations(ctx, migrations.SQLite)
			default:
				return fmt.Errorf("cli: backend %q has no schema to migrate", opts.cfg.Backend)
			}
		},
	}

	return cmd
}
