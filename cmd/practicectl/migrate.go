package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/app"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/postgres"
)

// openMigrator connects to Postgres without applying migrations on open.
func (o *rootOptions) openMigrator(ctx context.Context) (*postgres.Migrator, func() error, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return nil, nil, errors.New("migrate needs the postgres driver (--store postgres)")
	}
	cfg.Database.AutoMigrate = false
	cfg.Store.UnlockDriver = ""
	cfg.Redis.EventBus = false

	stores, err := app.OpenStores(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewMigrator(stores.Postgres), stores.Close, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeFn, err := opts.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := m.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
			return nil
		},
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeFn, err := opts.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, mig := range status {
				applied := "pending"
				if mig.IsApplied {
					applied = mig.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
			}
			return tw.Flush()
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeFn, err := opts.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := m.Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back")
			return nil
		},
	})
	return migrate
}
