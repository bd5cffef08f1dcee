// Package sqlite implements the database.Provider for SQLite, used for
// single-tenant installs and the orchestrator's test suite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/config"
)

// Provider wraps a sqlx.DB as a database.Provider.
type Provider struct {
	db     *sqlx.DB
	logger *zap.Logger
	path   string
}

// New opens a SQLite database and applies the configured pragmas.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Provider, error) {
	logger = logger.With(zap.String("component", "sqlite-provider"))

	sqliteCfg := cfg.SQLite
	path := sqliteCfg.Path

	if strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file::memory:") {
		logger.Info("initializing in-memory SQLite database")
	} else {
		if !strings.HasPrefix(path, "file:") {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("resolve absolute path: %w", err)
			}
			path = absPath
		}
		logger.Info("initializing file-based SQLite database", zap.String("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open SQLite database: %w", err)
	}
	dbx := sqlx.NewDb(db, "sqlite")

	dbx.SetMaxOpenConns(10)
	dbx.SetMaxIdleConns(5)
	dbx.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("ping SQLite database: %w", err)
	}

	provider := &Provider{db: dbx, logger: logger, path: path}
	if err := provider.applyPragmas(ctx, sqliteCfg); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	logger.Info("SQLite database initialized successfully")
	return provider, nil
}

func (p *Provider) applyPragmas(ctx context.Context, cfg config.SQLiteConfig) error {
	defaultPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(cfg.BusyTimeout.Milliseconds())),
	}
	for _, pragma := range defaultPragmas {
		p.logger.Debug("applying pragma", zap.String("pragma", pragma))
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %s: %w", pragma, err)
		}
	}
	for _, pragma := range cfg.Pragmas {
		p.logger.Debug("applying custom pragma", zap.String("pragma", pragma))
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply custom pragma %s: %w", pragma, err)
		}
	}

	var journalMode string
	if err := p.db.GetContext(ctx, &journalMode, "PRAGMA journal_mode"); err == nil {
		p.logger.Info("SQLite journal mode", zap.String("mode", journalMode))
	}
	return nil
}

// Pool returns the underlying *sqlx.DB.
func (p *Provider) Pool() interface{} { return p.db }

func (p *Provider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var result int
	if err := p.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (p *Provider) Close() {
	p.logger.Info("closing SQLite connections")
	if err := p.db.Close(); err != nil {
		p.logger.Error("error closing SQLite database", zap.Error(err))
	} else {
		p.logger.Info("SQLite connections closed")
	}
}
