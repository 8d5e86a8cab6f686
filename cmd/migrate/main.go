// Command migrate manages the Delified database schema and demo data.
//
//	migrate up
//	migrate down
//	migrate to 1
//	migrate version
//	migrate seed
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"delified/internal/config"
	"delified/internal/database"
	"delified/internal/database/migrations"
	"delified/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// log is replaced with the file logger in main.
var log = logger.Nop()

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the Delified database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: withDB(func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error {
		if cfg.Database.Driver == "sqlite" {
			return database.CreateSchema(ctx, db)
		}
		return withRunner(db, (*migrations.Runner).MigrateUp)
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: withDB(func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error {
		if err := requirePostgres(cfg); err != nil {
			return err
		}
		return withRunner(db, (*migrations.Runner).MigrateDown)
	}),
}

var toCmd = &cobra.Command{
	Use:   "to VERSION",
	Short: "Migrate up or down to VERSION",
	Args:  cobra.ExactArgs(1),
	RunE: withDB(func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error {
		if err := requirePostgres(cfg); err != nil {
			return err
		}
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withRunner(db, func(r *migrations.Runner) error {
			return r.MigrateTo(uint(version))
		})
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: withDB(func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error {
		if err := requirePostgres(cfg); err != nil {
			return err
		}
		return withRunner(db, func(r *migrations.Runner) error {
			version, dirty, err := r.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo users, MUNs and posts",
	Args:  cobra.NoArgs,
	RunE: withDB(func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error {
		return seedData(ctx, db, cfg.Payment.Currency)
	}),
}

func init() {
	rootCmd.AddCommand(upCmd, downCmd, toCmd, versionCmd, seedCmd)
}

type dbFunc func(ctx context.Context, cfg *config.Config, db *bun.DB, args []string) error

// withDB loads configuration and opens the database for a subcommand.
func withDB(fn dbFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Debug("CONFIG", ".env file not found, using environment variables")
		}
		cfg := config.Load()

		ctx := cmd.Context()
		db, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()

		return fn(ctx, cfg, db, args)
	}
}

func withRunner(db *bun.DB, fn func(r *migrations.Runner) error) error {
	runner := migrations.NewRunner(db, log)
	defer runner.Close()
	return fn(runner)
}

func requirePostgres(cfg *config.Config) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("versioned migrations need DB_DRIVER=postgres, got %q", cfg.Database.Driver)
	}
	return nil
}

func main() {
	log = logger.NewLogger()
	defer log.Close()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}
	log.Info("MIGRATE", "✅ Done.")
}
