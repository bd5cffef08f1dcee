// Package postgres implements the storage plane's RawClient, PlanStore,
// TenantStore and TenantClient interfaces against jackc/pgx/v5, grounded on
// the teacher's tenant/postgres/repository.go.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Client is the concrete pgx-backed RawClient.
type Client struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New wraps an already-opened pgxpool.Pool. Accepts interface{} to satisfy
// the same provider-abstraction convention the teacher's repository
// constructors use (database.Provider.Pool() returns interface{}).
func New(pool interface{}, logger *zap.Logger) (*Client, error) {
	pgPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("postgres: expected *pgxpool.Pool, got %T", pool)
	}
	return &Client{
		pool:   pgPool,
		logger: logger.With(zap.String("component", "storage-postgres")),
	}, nil
}

func (c *Client) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := c.pool.Exec(ctx, sql, args...)
	return err
}

type txKey struct{}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			c.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit(ctx)
}

// querier abstracts over *pgxpool.Pool and pgx.Tx so every method below can
// run either directly on the pool or inside WithTx's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (c *Client) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return c.pool
}

func (c *Client) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
