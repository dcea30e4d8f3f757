// Package main is the schema migration CLI.
//
//	discountrules-migrate up
//	discountrules-migrate down --steps 1
//	discountrules-migrate version
//	discountrules-migrate force 2
//	discountrules-migrate install-labels
//	discountrules-migrate uninstall-labels
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/database"
	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/requirement"
	"github.com/rafaeljc/discountrules/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	databaseURL    string
	migrationsPath string
	logLevel       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "discountrules-migrate",
		Short:         "Manage the discountrules database schema and rule labels",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.databaseURL, "database", "",
		"PostgreSQL URL (defaults to $"+config.EnvPrefix+"_DB_URL, then $DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.migrationsPath, "path", "migrations", "path to the migrations directory")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(
		newUpCmd(opts),
		newDownCmd(opts),
		newVersionCmd(opts),
		newForceCmd(opts),
		newInstallLabelsCmd(opts),
		newUninstallLabelsCmd(opts),
	)
	return root
}

func newUpCmd(opts *options) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrate(opts, func(m *migrate.Migrate, log *slog.Logger) error {
				var err error
				if steps > 0 {
					err = m.Steps(steps)
				} else {
					err = m.Up()
				}
				if errors.Is(err, migrate.ErrNoChange) {
					log.Info("no migrations to run, database is up to date")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				log.Info("migrations applied")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "apply at most N migrations (0 = all)")
	return cmd
}

func newDownCmd(opts *options) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrate(opts, func(m *migrate.Migrate, log *slog.Logger) error {
				var err error
				if steps > 0 {
					err = m.Steps(-steps)
				} else {
					err = m.Down()
				}
				if errors.Is(err, migrate.ErrNoChange) {
					log.Info("nothing to roll back")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to roll back migrations: %w", err)
				}
				log.Info("rollback completed")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "roll back at most N migrations (0 = all)")
	return cmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrate(opts, func(m *migrate.Migrate, log *slog.Logger) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					log.Info("no migration applied yet")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				log.Info("current schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
				return nil
			})
		},
	}
}

func newForceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations (clears the dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrate(opts, func(m *migrate.Migrate, log *slog.Logger) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("failed to force version: %w", err)
				}
				log.Info("forced schema version", slog.Int("version", version))
				return nil
			})
		},
	}
}

// parseVersion accepts -1 (no version) or a non-negative migration number.
func parseVersion(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid version number %q: %w", raw, err)
	}
	if v < -1 {
		return 0, fmt.Errorf("invalid version number %d", v)
	}
	return v, nil
}

// resolveDatabaseURL prefers the flag, then the service variable, then DATABASE_URL.
func resolveDatabaseURL(flagValue string, getenv func(string) string) (string, error) {
	for _, candidate := range []string{flagValue, getenv(config.EnvPrefix + "_DB_URL"), getenv("DATABASE_URL")} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", errors.New("database URL is required: use --database or set " + config.EnvPrefix + "_DB_URL")
}

func newInstallLabelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install-labels",
		Short: "Register the localization labels of every rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLabels(cmd.Context(), opts, func(ctx context.Context, rules *requirement.Registry, labels localization.Registry) error {
				return rules.InstallAll(ctx, labels)
			})
		},
	}
}

func newUninstallLabelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall-labels",
		Short: "Remove the localization labels of every rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLabels(cmd.Context(), opts, func(ctx context.Context, rules *requirement.Registry, labels localization.Registry) error {
				return rules.UninstallAll(ctx, labels)
			})
		},
	}
}

func newLogger(opts *options) *slog.Logger {
	return logger.New(&config.AppConfig{
		Name:      "discountrules-migrate",
		Version:   "dev",
		LogLevel:  opts.logLevel,
		LogFormat: "text",
	})
}

// withLabels connects to the database and hands fn the rule registry and
// the label table.
func withLabels(ctx context.Context, opts *options, fn func(context.Context, *requirement.Registry, localization.Registry) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger(opts)
	ctx = logger.WithContext(ctx, log)

	dbURL, err := resolveDatabaseURL(opts.databaseURL, os.Getenv)
	if err != nil {
		return err
	}

	pool, err := database.NewPostgresPool(ctx, &config.DatabaseConfig{
		URL:            dbURL,
		MaxConns:       2,
		ConnectTimeout: 5 * time.Second,
		PingMaxRetries: 3,
		PingBackoff:    time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	rules, err := requirement.NewDefaultRegistry(log, store.NewPostgresSettings(pool))
	if err != nil {
		return fmt.Errorf("failed to build rule registry: %w", err)
	}

	return fn(ctx, rules, store.NewPostgresLabels(pool))
}

func withMigrate(opts *options, fn func(*migrate.Migrate, *slog.Logger) error) error {
	log := newLogger(opts)

	dbURL, err := resolveDatabaseURL(opts.databaseURL, os.Getenv)
	if err != nil {
		return err
	}

	log.Info("connecting to database", slog.String("migrations_path", opts.migrationsPath))

	m, err := migrate.New("file://"+opts.migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", slog.Any("source_error", srcErr), slog.Any("database_error", dbErr))
		}
	}()

	return fn(m, log)
}
