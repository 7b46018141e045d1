package cmd

import (
	"github.com/spf13/cobra"

	"github.com/menkyo-prep/sign-engine/pkg/app"
)

var migrateDown int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending catalog schema migrations",
	Long:  "Apply pending catalog schema migrations, or roll back the last N with --down N.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateDown, "down", 0, "roll back this many migrations instead of applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if migrateDown > 0 {
		return app.Rollback(cfg, migrateDown, logger)
	}
	return app.Migrate(cfg, logger)
}
