package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/config"
	"github.com/codeforge-run/orchestrator/internal/database"
	"github.com/codeforge-run/orchestrator/internal/logger"
	"github.com/codeforge-run/orchestrator/internal/storage"
	storagepostgres "github.com/codeforge-run/orchestrator/internal/storage/postgres"
	storagesqlite "github.com/codeforge-run/orchestrator/internal/storage/sqlite"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

// cliState is populated by loadCLIState in the root command's
// PersistentPreRunE and torn down in PersistentPostRunE. Every subcommand
// reads it through state.tenants and scopedContext() rather than threading
// it through cobra flags.
type cliState struct {
	dbProvider database.Provider
	tenants    storage.TenantClient
	tenantID   string
	logger     *zap.Logger
}

var state cliState

func newRootCommand() *cobra.Command {
	var configPath string
	var tenantID string

	cmd := &cobra.Command{
		Use:   "jobctl",
		Short: "Operator CLI for the orchestrator's job and repository state",
		Long:  "A command-line tool for creating and inspecting orchestrator jobs and the repositories they target.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIState(cmd.Context(), configPath, tenantID)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if state.dbProvider != nil {
				state.dbProvider.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID to scope operations to (required for all subcommands except their --help)")

	cmd.AddCommand(newJobCommand())
	cmd.AddCommand(newRepoCommand())

	return cmd
}

// loadCLIState loads orchestrator configuration the same way
// cmd/orchestrator-worker does, opens the database provider, and records the
// requested tenant id; scopedContext binds it to each storage call's context.
func loadCLIState(ctx context.Context, configPath, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("--tenant-id is required")
	}

	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return fmt.Errorf("bind environment variables: %w", err)
	}

	resolvedPath, err := config.FindConfigFile(configPath)
	if err != nil {
		return err
	}
	if resolvedPath != "" {
		if err := config.LoadConfigFile(v, resolvedPath); err != nil {
			return err
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	provider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	tenants, err := newTenantClient(&cfg.Database, provider, log)
	if err != nil {
		provider.Close()
		return err
	}

	state = cliState{
		dbProvider: provider,
		tenants:    tenants,
		tenantID:   tenantID,
		logger:     log,
	}
	return nil
}

func newTenantClient(cfg *config.DatabaseConfig, provider database.Provider, log *zap.Logger) (storage.TenantClient, error) {
	switch cfg.Provider {
	case "postgres", "postgresql":
		client, err := storagepostgres.New(provider.Pool(), log)
		if err != nil {
			return nil, err
		}
		return storagepostgres.NewTenantClient(client), nil
	case "sqlite":
		client, err := storagesqlite.New(provider.Pool(), log)
		if err != nil {
			return nil, err
		}
		return storagesqlite.NewTenantClient(client), nil
	default:
		return nil, fmt.Errorf("unknown database provider: %s", cfg.Provider)
	}
}

// scopedContext binds the requested tenant to ctx for one storage call.
func scopedContext(ctx context.Context) context.Context {
	return tenantscope.With(ctx, tenantscope.Scope{TenantID: state.tenantID})
}
