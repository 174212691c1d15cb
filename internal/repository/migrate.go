package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/joseph-ayodele/tradedocs/db"
)

// Migrate applies the embedded migrations for the client's dialect.
// Postgres migrations run on a dedicated connection; SQLite shares the
// client's handle so in-memory databases see the schema.
func Migrate(c *Client, logger *slog.Logger) error {
	if c.drv == nil {
		return errors.New("migrate: cannot run inside a transaction")
	}
	dir := map[string]string{dialect.Postgres: "postgres", dialect.SQLite: "sqlite"}[c.dialect]
	if dir == "" {
		return fmt.Errorf("migrate: unsupported dialect %q", c.dialect)
	}
	src, err := iofs.New(db.Migrations, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	var (
		target database.Driver
		owned  bool
	)
	switch c.dialect {
	case dialect.Postgres:
		sqlDB, err := sql.Open("pgx/v5", c.dsn)
		if err != nil {
			return fmt.Errorf("migrate open: %w", err)
		}
		target, err = pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
		if err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("migrate driver: %w", err)
		}
		owned = true
	case dialect.SQLite:
		target, err = sqlitemigrate.WithInstance(c.drv.DB(), &sqlitemigrate.Config{})
		if err != nil {
			return fmt.Errorf("migrate driver: %w", err)
		}
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", c.dialect)
	}

	m, err := migrate.NewWithInstance("iofs", src, dir, target)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if owned {
		defer func() {
			if serr, derr := m.Close(); serr != nil || derr != nil {
				logger.Warn("migrate close", "source_error", serr, "database_error", derr)
			}
		}()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "error", err)
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("database migrated", "dialect", c.dialect, "version", version, "dirty", dirty)
	return nil
}
