package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Client is the handle every repository is built from. Queries are written
// with ent's dialect-aware builder and run through an ent SQL driver, so the
// same repository code serves Postgres and SQLite.
type Client struct {
	conn    dialect.ExecQuerier
	drv     *entsql.Driver // nil inside a transaction
	pool    *pgxpool.Pool  // nil for sqlite
	dialect string
	dsn     string
}

// Open creates a pgx pool and wraps it for ent.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	logger.Info("connecting to database", "driver", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "tradedocs"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	logger.Info("successfully connected to database")
	return &Client{conn: drv, drv: drv, pool: pool, dialect: dialect.Postgres, dsn: cfg.DSN}, nil
}

// OpenSQLite opens a modernc SQLite database. Use "file::memory:" style DSNs
// for throwaway databases; the pool is pinned to one connection so an
// in-memory database survives for the life of the client.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*Client, error) {
	logger.Info("connecting to database", "driver", dialect.SQLite)
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		// sortable timestamps, required by the created_at ordering
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	drv := entsql.OpenDB(dialect.SQLite, db)
	return &Client{conn: drv, drv: drv, dialect: dialect.SQLite, dsn: dsn}, nil
}

func (c *Client) Dialect() string { return c.dialect }

func (c *Client) builder() *entsql.DialectBuilder { return entsql.Dialect(c.dialect) }

// InTx runs fn against a client bound to one transaction. fn must only use
// repositories built from the client it is given.
func (c *Client) InTx(ctx context.Context, fn func(tx *Client) error) error {
	if c.drv == nil {
		return fn(c)
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txc := &Client{conn: tx, dialect: c.dialect, dsn: c.dsn}
	if err := fn(txc); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	return tx.Commit()
}

// Close closes the database connections gracefully
func Close(c *Client, logger *slog.Logger) {
	if c == nil {
		return
	}
	logger.Info("closing database connections")
	if c.drv != nil {
		if err := c.drv.Close(); err != nil {
			logger.Error("failed to close sql driver", "error", err)
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func HealthCheck(ctx context.Context, c *Client, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if c.pool != nil {
		err = c.pool.Ping(ctx)
	} else if c.drv != nil {
		err = c.drv.DB().PingContext(ctx)
	}
	if err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
