package cmd

import (
	"os"

	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/application/common/slogger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Create the caseindex schema, tables and indexes if they do not exist.
Statements are idempotent, so re-running against an up-to-date database
is a no-op.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg := GetConfig()

		pool, err := setupDatabaseConnection(cfg)
		if err != nil {
			slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
			os.Exit(1)
		}
		defer pool.Close()

		if err := repository.Migrate(cmd.Context(), pool); err != nil {
			slogger.ErrorNoCtx("Migration failed", slogger.Fields{"error": err.Error()})
			os.Exit(1)
		}

		slogger.InfoNoCtx("Database schema up to date", slogger.Fields{
			"database": cfg.Database.Name,
		})
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(migrateCmd)
}
