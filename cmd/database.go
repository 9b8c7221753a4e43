package cmd

import (
	"fmt"

	"github.com/frahmantamala/hospitality-access/internal"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlDriver maps the configured driver to the database/sql driver name.
func sqlDriver(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return "pgx"
}

// initDB opens one connection pool and shares it between sqlx, used by the
// audit store, and gorm, used by the repositories.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	sqlxDB, err := sqlx.Connect(sqlDriver(cfg.Driver), cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked".
		sqlxDB.SetMaxOpenConns(1)
	} else {
		sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlxDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = &sqlite.Dialector{DriverName: "sqlite3", Conn: sqlxDB.DB}
	default:
		dialector = postgres.New(postgres.Config{Conn: sqlxDB.DB})
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		_ = sqlxDB.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return sqlxDB, gormDB, nil
}
