package main

import (
	"github.com/spf13/cobra"

	"mes-execution-backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		gormDB, err := db.Init(&cfg.Database, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		return nil
	},
}
