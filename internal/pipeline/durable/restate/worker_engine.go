package restate

import (
	"context"
	"errors"
	"fmt"
	"time"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/config"
	"github.com/codeforge-run/orchestrator/internal/pipeline"
	"github.com/codeforge-run/orchestrator/internal/queue"
)

// WorkerEngine binds each pipeline.StageWorker as a Restate service
// handler instead of a queue.Broker.Consume loop: the Restate runtime
// becomes responsible for at-least-once delivery and durable retries,
// and HandleOnce itself never changes. Grounded on the teacher's
// workflow/providers/restate.WorkerEngine.
type WorkerEngine struct {
	config  config.RestateConfig
	workers []pipeline.StageWorker
	logger  *zap.Logger
}

// NewWorkerEngine builds a WorkerEngine over the four stage workers.
func NewWorkerEngine(cfg config.RestateConfig, workers []pipeline.StageWorker, logger *zap.Logger) (*WorkerEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid restate configuration: %w", err)
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("at least one stage worker is required")
	}
	return &WorkerEngine{
		config:  cfg,
		workers: workers,
		logger:  logger.With(zap.String("component", "restate-worker-engine")),
	}, nil
}

var _ pipeline.WorkerEngine = (*WorkerEngine)(nil)

func (w *WorkerEngine) Name() string { return "restate" }

// Register announces this process's advertised address to the Restate
// admin API, retrying with exponential backoff. An admin API that
// doesn't support registration (older self-hosted servers expecting a
// manual `restate deployments register` instead) is treated as a no-op,
// matching the teacher's same tolerance.
func (w *WorkerEngine) Register(ctx context.Context) error {
	if !w.config.RegisterOnStartup {
		w.logger.Info("worker registration disabled")
		return nil
	}

	client := newAdminClient(w.config, w.logger)

	attempts := w.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for i := 0; i < attempts; i++ {
		registerCtx, cancel := context.WithTimeout(ctx, w.config.RegisterTimeout)
		err := client.registerDeployment(registerCtx, w.config.AdvertisedURL)
		cancel()
		if err == nil {
			w.logger.Info("worker registered",
				zap.String("service_name", w.config.ServiceName),
				zap.String("uri", w.config.AdvertisedURL))
			return nil
		}
		if errors.Is(err, errAdminAPINotSupported) {
			w.logger.Warn("worker registration not supported by restate admin api", zap.Error(err))
			return nil
		}
		lastErr = err
		w.logger.Warn("worker registration failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
	}

	return fmt.Errorf("worker registration failed after %d attempt(s): %w", attempts, lastErr)
}

// Start binds every stage worker as a handler on one Restate service and
// serves it at addr until ctx is cancelled.
func (w *WorkerEngine) Start(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("worker address is required")
	}

	restateServer := server.NewRestate()
	bindStageHandlers(restateServer, w.config.ServiceName, w.workers, w.logger)

	w.logger.Info("starting restate worker",
		zap.String("address", addr),
		zap.String("service_name", w.config.ServiceName))

	return restateServer.Start(ctx, addr)
}

// handleResult is the durable response every stage handler returns;
// Restate journals it as the invocation's result.
type handleResult struct {
	OK bool `json:"ok"`
}

// bindStageHandlers registers one named handler per stage worker
// ("planning", "coding", "reviewing", "pr-open") on a single Restate
// service, mirroring the teacher's TenantProvisioningService.Bind (one
// server.Bind call wiring a restate.NewService with its handlers).
func bindStageHandlers(restateServer *server.Restate, serviceName string, workers []pipeline.StageWorker, logger *zap.Logger) {
	svc := restate.NewService(serviceName)
	for _, worker := range workers {
		svc = svc.Handler(string(worker.Stage()), stageHandler(worker, logger))
	}
	restateServer.Bind(svc)
}

func stageHandler(worker pipeline.StageWorker, logger *zap.Logger) *restate.ServiceHandler[queue.Message, handleResult] {
	stage := worker.Stage()
	return restate.NewServiceHandler(func(_ restate.Context, msg queue.Message) (handleResult, error) {
		logger.Info("handling durable stage invocation",
			zap.String("stage", string(stage)), zap.String("job_id", msg.JobID))
		if err := worker.HandleOnce(context.Background(), msg); err != nil {
			return handleResult{}, err
		}
		return handleResult{OK: true}, nil
	})
}
