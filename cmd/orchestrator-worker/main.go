// Command orchestrator-worker runs the pipeline's four stage worker pools
// against the configured storage plane, queue broker and WorkerEngine
// binding until signaled to stop. Grounded on the teacher's cmd/worker
// and cmd/workers/restate/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/agent/mock"
	"github.com/codeforge-run/orchestrator/internal/cloud/awsconfig"
	"github.com/codeforge-run/orchestrator/internal/config"
	"github.com/codeforge-run/orchestrator/internal/database"
	"github.com/codeforge-run/orchestrator/internal/logger"
	"github.com/codeforge-run/orchestrator/internal/pipeline"
	"github.com/codeforge-run/orchestrator/internal/pipeline/durable/restate"
	"github.com/codeforge-run/orchestrator/internal/prcollab"
	"github.com/codeforge-run/orchestrator/internal/prcollab/githubopener"
	"github.com/codeforge-run/orchestrator/internal/prcollab/mockopener"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/queue/inprocess"
	"github.com/codeforge-run/orchestrator/internal/queue/sqsbroker"
	"github.com/codeforge-run/orchestrator/internal/storage"
	storagepostgres "github.com/codeforge-run/orchestrator/internal/storage/postgres"
	storagesqlite "github.com/codeforge-run/orchestrator/internal/storage/sqlite"
)

func main() {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind environment variables: %v\n", err)
		os.Exit(1)
	}

	configFile, err := config.FindConfigFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find config file: %v\n", err)
		os.Exit(1)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting orchestrator worker")

	ctx := context.Background()

	dbProvider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbProvider.Close()

	tenants, err := newTenantClient(&cfg.Database, dbProvider, log)
	if err != nil {
		log.Fatal("failed to initialize tenant client", zap.Error(err))
	}

	broker, err := newBroker(ctx, &cfg.Queue, log)
	if err != nil {
		log.Fatal("failed to initialize queue broker", zap.Error(err))
	}

	agents := agent.NewRegistry(log)
	if err := agents.Register(mock.New()); err != nil {
		log.Fatal("failed to register mock agent", zap.Error(err))
	}

	opener, err := newOpener(ctx, &cfg.PRCollab, log)
	if err != nil {
		log.Fatal("failed to initialize pr-collaborator", zap.Error(err))
	}

	workers := []pipeline.StageWorker{
		pipeline.NewPlanWorker(tenants, agents, cfg.Agent.Provider, broker, cfg.Pipeline.StageTimeouts.Planning, log),
		pipeline.NewCodeWorker(tenants, agents, cfg.Agent.Provider, broker, cfg.Pipeline.StageTimeouts.Coding, log),
		pipeline.NewReviewWorker(tenants, agents, cfg.Agent.Provider, broker, cfg.Pipeline.StageTimeouts.Reviewing, cfg.Pipeline.MaxReviewAttempts, log),
		pipeline.NewPrOpenWorker(tenants, opener, cfg.PRCollab.GitHub.BaseBranch, cfg.Pipeline.StageTimeouts.PROpen, log),
	}

	engine, err := newEngine(cfg, broker, workers, log)
	if err != nil {
		log.Fatal("failed to initialize worker engine", zap.Error(err))
	}

	lifecycle := pipeline.NewLifecycle(engine, broker, cfg.Pipeline.DrainTimeout, workerAddress(), log)
	if err := lifecycle.Start(ctx); err != nil {
		log.Fatal("failed to start pipeline", zap.Error(err))
	}

	log.Info("orchestrator worker started, waiting for jobs",
		zap.String("engine", engine.Name()), zap.String("address", workerAddress()))

	stopCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	<-stopCtx.Done()
	cancel()

	if err := lifecycle.Stop(); err != nil {
		log.Error("pipeline shutdown reported an error", zap.Error(err))
	}
	log.Info("orchestrator worker stopped")
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

func newBroker(ctx context.Context, cfg *config.QueueConfig, log *zap.Logger) (queue.Broker, error) {
	switch cfg.Provider {
	case "inprocess":
		return inprocess.New(cfg.MaxRetries, cfg.BaseBackoff, cfg.MaxBackoff, log), nil
	case "sqs":
		awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{Region: cfg.SQS.Region})
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return sqsbroker.New(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURLs, cfg.SQS.VisibilityTimeout, log)
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Provider)
	}
}

func newOpener(ctx context.Context, cfg *config.PRCollabConfig, log *zap.Logger) (prcollab.Opener, error) {
	switch cfg.Provider {
	case "mock":
		return mockopener.New(), nil
	case "github":
		key, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read github app private key: %w", err)
		}
		httpClient, err := githubopener.NewAppInstallationClient(ctx, cfg.GitHub, key)
		if err != nil {
			return nil, err
		}
		return githubopener.New(httpClient), nil
	default:
		return nil, fmt.Errorf("unknown pr-collaborator provider: %s", cfg.Provider)
	}
}

func newEngine(cfg *config.Config, broker queue.Broker, workers []pipeline.StageWorker, log *zap.Logger) (pipeline.WorkerEngine, error) {
	switch cfg.Pipeline.Engine {
	case "inprocess":
		return pipeline.NewInProcessEngine(broker, workers, cfg.Pipeline.WorkersPerStage, log), nil
	case "restate":
		return restate.NewWorkerEngine(cfg.Restate, workers, log)
	default:
		return nil, fmt.Errorf("unknown pipeline engine: %s", cfg.Pipeline.Engine)
	}
}

func workerAddress() string {
	if addr := os.Getenv("ORCHESTRATOR_WORKER_ADDRESS"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":9080"
}
