// Package store is the thin abstraction over the transactional relational
// store described in spec §2 ("Record store"). Every other component talks
// to the database exclusively through the types here: a *sqlx.DB/*sqlx.Tx
// pair, a Constraints value for ad hoc filtering, and Pagination for
// length-aware listing. It intentionally does not know about jobs,
// work items, or any other domain type.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
)

// DB wraps a *sqlx.DB opened against a pgx-backed database/sql connection.
type DB struct {
	*sqlx.DB
}

// Open connects to dsn, registers the pgx driver with database/sql under
// the hood, and applies the pool limits from Config.
func Open(dsn string, cfg PoolConfig) (*DB, error) {
	conn, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &DB{DB: conn}, nil
}

// PoolConfig bounds the connection pool a DB opens.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig matches the modest defaults the teacher's SQLite layer
// used for its single-writer pool, scaled up for a multi-connection
// Postgres deployment.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute}
}

// Ext is satisfied by both *sqlx.DB and *sqlx.Tx; every repository method
// that doesn't need an explicit transaction boundary accepts this so tests
// can pass either.
type Ext interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. This is the unit of isolation every mutator
// that reads-then-writes a Job row uses (§5).
func WithTx(ctx context.Context, db *DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// IsNoRows reports whether err is the "no matching row" sentinel from
// database/sql, the boundary at which a repository should return
// jobs.ErrNotFound rather than propagate a storage error (§7).
func IsNoRows(err error) bool {
	return err == sql.ErrNoRows
}
