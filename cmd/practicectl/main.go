// Command practicectl inspects and maintains a Practice Hub store from the
// terminal: list the rule catalog, evaluate progress, reconcile unlocks,
// log sessions, seed reference data and run Postgres migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/app"
	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	store      string
	sqlitePath string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "practicectl",
		Short:         "Practice Hub achievement engine tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: $"+config.FileEnvVar+")")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "store driver: sqlite|postgres (default: from config, sqlite when config says memory)")
	root.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "SQLite database path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newCatalogCmd(opts),
		newEvaluateCmd(opts),
		newReconcileCmd(opts),
		newLogSessionCmd(opts),
		newSeedCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// cliEnv is what every subcommand works with.
type cliEnv struct {
	cfg    *config.Config
	log    *logger.Logger
	stores *app.Stores
	flow   *saga.AchievementFlowSaga
}

func (e *cliEnv) Close() error {
	_ = e.log.Sync()
	return e.stores.Close()
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(config.FileEnvVar)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	// An in-memory store forgets everything between invocations.
	if cfg.Store.Driver == config.DriverMemory {
		cfg.Store.Driver = config.DriverSQLite
		if cfg.Store.UnlockDriver == config.DriverMemory {
			cfg.Store.UnlockDriver = ""
		}
	}
	if o.store != "" {
		cfg.Store.Driver = o.store
	}
	if o.sqlitePath != "" {
		cfg.SQLite.Path = o.sqlitePath
	}
	if o.verbose {
		cfg.Observability.LogLevel = "debug"
	} else {
		cfg.Observability.LogLevel = "warn"
	}
	cfg.Observability.LogFormat = "console"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) open(ctx context.Context) (*cliEnv, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cfg).Named("practicectl")

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &cliEnv{
		cfg:    cfg,
		log:    log,
		stores: stores,
		// No subscribers live in a CLI process.
		flow: app.NewFlow(cfg, stores, nil, log),
	}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
