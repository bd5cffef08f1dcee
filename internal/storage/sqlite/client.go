// Package sqlite implements the storage plane's RawClient, PlanStore,
// TenantStore and TenantClient interfaces against jmoiron/sqlx +
// modernc.org/sqlite, mirroring internal/storage/postgres for the
// single-node / test-suite backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Client is the concrete sqlx-backed RawClient.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New wraps an already-opened sqlx.DB, matching the postgres package's
// interface{}-accepting constructor convention.
func New(pool interface{}, logger *zap.Logger) (*Client, error) {
	db, ok := pool.(*sqlx.DB)
	if !ok {
		return nil, fmt.Errorf("sqlite: expected *sqlx.DB, got %T", pool)
	}
	return &Client{
		db:     db,
		logger: logger.With(zap.String("component", "storage-sqlite")),
	}, nil
}

func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

type txKey struct{}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// querier abstracts over *sqlx.DB and *sqlx.Tx so every method below can run
// either directly on the handle or inside WithTx's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func (c *Client) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return c.db
}

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces constraint violations as plain error text;
	// there is no typed sentinel to errors.As against.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
