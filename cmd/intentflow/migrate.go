package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `intentflow migrate [options] <command> [arg]`.
// --db-type/--db-url override the database section of the config.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, migration.Usage)
		fmt.Fprintln(os.Stderr, "\noptions:")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() == 0 || fs.Arg(0) == "help" {
		fs.Usage()
		return nil
	}

	var (
		m   *migration.DefaultMigrator
		err error
	)
	if *dbURL != "" {
		if *dbType == "" {
			return fmt.Errorf("--db-type is required with --db-url")
		}
		m, err = migration.NewMigratorFromURL(*dbType, *dbURL, nil)
	} else {
		var cfg *config.Config
		cfg, err = loadConfig(*configPath)
		if err != nil {
			return err
		}
		if *dbType != "" {
			cfg.Database.Driver = *dbType
		}
		logger, _ := initLogger(cfg.Log)
		defer func() { _ = logger.Sync() }()
		m, err = migration.NewMigratorFromConfig(cfg, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	ctx, stop := signalContext()
	defer stop()

	return migration.NewCLI(m).Run(ctx, fs.Args())
}
