package Models

import (
	"fmt"
	"log/slog"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database named by driver ("sqlite", "mysql" or
// "postgres") and migrates the schema.
func Connect(driver, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	connection, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// SQLite serialises writers anyway; one connection avoids
		// "database is locked" under the carry-forward worker pool.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := Migrate(connection); err != nil {
		return nil, err
	}

	slog.Info("Database connected", "driver", driver)
	return connection, nil
}

// Dialector picks the GORM driver for the configured backend.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = "workbench.db"
		}
		return sqlite.Open(dsn), nil
	case "mysql":
		normalized, err := normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		return mysql.Open(normalized), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// normalizeMySQLDSN forces parseTime so DATETIME columns scan into
// time.Time, and pins the session to UTC.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

// Migrate creates or updates every table. Order follows the foreign keys.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Company{},
		&User{},
		&UserActivity{},
	); err != nil {
		return fmt.Errorf("migrating accounts: %w", err)
	}

	if err := db.AutoMigrate(
		&Project{},
		&ProjectMember{},
	); err != nil {
		return fmt.Errorf("migrating projects: %w", err)
	}

	if err := db.AutoMigrate(
		&Task{},
		&CarryForwardRun{},
	); err != nil {
		return fmt.Errorf("migrating tasks: %w", err)
	}
	return nil
}
