// Package cli contains the pagetrack command tree.
//
// Every command opens the configured store backend, performs one store
// operation and renders the result, making the full request/stage-log
// model scriptable from a shell.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/config"
	"github.com/ocrhub/pagetrack/internal/sqlite"
	"github.com/ocrhub/pagetrack/internal/storage"
	"github.com/ocrhub/pagetrack/internal/store"
	"github.com/ocrhub/pagetrack/internal/telemetry"
	"github.com/ocrhub/pagetrack/migrations"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// rootOptions holds state shared by all commands.
type rootOptions struct {
	cfg    config.Config
	logger *slog.Logger

	// openStore is swappable in tests.
	openStore func(ctx context.Context) (store.Store, error)

	otelShutdown telemetry.Shutdown
}

// NewRootCommand creates the root command for the pagetrack CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	if opts.openStore == nil {
		opts.openStore = opts.openConfigured
	}

	cmd := &cobra.Command{
		Use:   "pagetrack",
		Short: "Track page processing requests and their stage logs",
		Long: `pagetrack records processing requests for page/image pipelines: which
stages each request must run, which artifacts the stages produced, and an
append-only log of every stage execution.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := slog.LevelInfo
			if cfg.LogLevel == "debug" {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(opts.logger)

			shutdown, err := telemetry.Init(cmd.Context(), cfg.OTELEndpoint, cfg.ServiceName, Version, cfg.OTELInsecure)
			if err != nil {
				return err
			}
			opts.otelShutdown = shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.otelShutdown != nil {
				return opts.otelShutdown(context.Background())
			}
			return nil
		},
	}

	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newResultCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCompleteCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

// openConfigured opens the backend selected by PAGETRACK_STORE, wrapped in
// the span and metric instrumentation decorator.
func (o *rootOptions) openConfigured(ctx context.Context) (store.Store, error) {
	s, err := o.openRaw(ctx)
	if err != nil {
		return nil, err
	}
	return store.WithInstrumentation(s), nil
}

func (o *rootOptions) openRaw(ctx context.Context) (store.Store, error) {
	switch o.cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendSQLite:
		db, err := sqlite.Open(o.cfg.SQLitePath, o.logger)
		if err != nil {
			return nil, err
		}
		// The sqlite database is a local file; keep it current without a
		// separate migrate invocation.
		if err := db.RunMigrations(ctx, migrations.SQLite); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.BackendPostgres:
		return storage.New(ctx, o.cfg.DatabaseURL, o.logger)
	default:
		return nil, fmt.Errorf("cli: unknown backend %q", o.cfg.Backend)
	}
}

// withStore opens the store, runs fn with an operation-scoped context and
// closes the store afterwards.
func (o *rootOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, s store.Store) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.cfg.OpTimeout)
	defer cancel()

	s, err := o.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			o.logger.Warn("closing store", "error", err)
		}
	}()

	return fn(ctx, s)
}
