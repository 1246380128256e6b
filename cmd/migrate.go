package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		mysqlSQL, err := readMigration("001_init.sql")
		if err != nil {
			return err
		}
		// needs multiStatements=true in the DSN
		if _, err := sqlDB.Exec(mysqlSQL); err != nil {
			return fmt.Errorf("exec mysql migration: %w", err)
		}
		fmt.Println(">> MySQL migration complete")

		if !cfg.Storage.ArchiveEnabled {
			return nil
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		chSQL, err := readMigration("clickhouse_001_archive.sql")
		if err != nil {
			return err
		}
		// the clickhouse driver runs one statement per Exec
		for _, stmt := range strings.Split(chSQL, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := chDB.Exec(stmt); err != nil {
				return fmt.Errorf("exec clickhouse migration: %w", err)
			}
		}
		fmt.Println(">> ClickHouse migration complete")
		return nil
	},
}

func readMigration(name string) (string, error) {
	path := filepath.Join("migrations", name)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read migration file %s: %w", path, err)
	}
	return string(b), nil
}
