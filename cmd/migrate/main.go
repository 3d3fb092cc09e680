// Command migrate applies the fondos schema migrations.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fondos/internal/config"
	"fondos/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var source string

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the fondos database schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&source, "path", "file://db/migrations", "migrations source URL")

	withMigrate := func(fn func(m *migrate.Migrate, log logrus.FieldLogger, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			m, err := migrate.New(source, cfg.DB.DSN())
			if err != nil {
				return fmt.Errorf("failed to create migrate instance: %w", err)
			}
			defer m.Close()
			return fn(m, log, args)
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, log logrus.FieldLogger, _ []string) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migration up failed: %w", err)
				}
				log.Info("migrations applied successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, log logrus.FieldLogger, _ []string) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migration down failed: %w", err)
				}
				log.Info("migrations reverted successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or revert them when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrate(func(m *migrate.Migrate, log logrus.FieldLogger, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps argument: %w", err)
				}
				if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migration steps failed: %w", err)
				}
				log.WithField("steps", n).Info("migration steps applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force V",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrate(func(m *migrate.Migrate, log logrus.FieldLogger, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version argument: %w", err)
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force version failed: %w", err)
				}
				log.WithField("version", v).Warn("schema version forced")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, _ logrus.FieldLogger, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				fmt.Printf("version: %d, dirty: %v\n", version, dirty)
				return nil
			}),
		},
	)
	return rootCmd
}
