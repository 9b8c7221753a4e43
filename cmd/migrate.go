package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/hospitality-access/db"
	permissionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/permission"
	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/user"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		Long:  `Apply the embedded goose migrations to PostgreSQL. A sqlite database is brought up to date from the models instead.`,
	}
	migrateRollback bool
)

// sqliteAuditSchema mirrors access_audit_log for sqlite development databases;
// the table is written through sqlx and has no gorm model.
const sqliteAuditSchema = `
CREATE TABLE IF NOT EXISTS access_audit_log (
	id          TEXT PRIMARY KEY,
	occurred_at TIMESTAMP NOT NULL,
	user_id     INTEGER,
	role        TEXT NOT NULL DEFAULT '',
	module      TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	decision    TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	risk_level  TEXT NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	remote_addr TEXT NOT NULL DEFAULT ''
)`

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	lg := logger.LoggerWrapper()

	if cfg.Database.Driver == "sqlite" {
		if migrateRollback {
			return fmt.Errorf("rollback is not supported for sqlite")
		}
		sqlDB, gormDB, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		models := append([]interface{}{&userDatamodel.User{}, &sessionDatamodel.Session{}}, permissionDatamodel.All()...)
		if err := gormDB.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if _, err := sqlDB.ExecContext(ctx, sqliteAuditSchema); err != nil {
			return fmt.Errorf("create audit table: %w", err)
		}
		lg.Info("sqlite schema is up to date", "source", cfg.Database.Source)
		return nil
	}

	conn, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer conn.Close()

	goose.SetBaseFS(db.Migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if err := goose.RunContext(ctx, command, conn, db.MigrationsDir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}

	lg.Info("migrations applied", "command", command)
	return nil
}
