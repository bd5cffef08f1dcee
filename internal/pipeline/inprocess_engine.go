package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/queue"
)

// InProcessEngine runs the four stage worker pools directly against the
// queue broker in this process, one concurrency-bounded Consume loop per
// stage.
type InProcessEngine struct {
	broker      queue.Broker
	workers     []StageWorker
	concurrency int
	logger      *zap.Logger

	wg sync.WaitGroup
}

// NewInProcessEngine builds an InProcessEngine over the given broker and
// the full set of stage workers (one per jobstate.Stage).
func NewInProcessEngine(broker queue.Broker, workers []StageWorker, concurrency int, logger *zap.Logger) *InProcessEngine {
	return &InProcessEngine{
		broker:      broker,
		workers:     workers,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "inprocess-engine")),
	}
}

var _ WorkerEngine = (*InProcessEngine)(nil)

func (e *InProcessEngine) Name() string { return "inprocess" }

// Register is a no-op for the in-process engine: there is no external
// control plane to announce handlers to.
func (e *InProcessEngine) Register(ctx context.Context) error { return nil }

// Start launches one Consume loop per stage worker and blocks until ctx is
// cancelled and every loop has returned.
func (e *InProcessEngine) Start(ctx context.Context, addr string) error {
	for _, w := range e.workers {
		e.wg.Add(1)
		go func(w StageWorker) {
			defer e.wg.Done()
			e.logger.Info("starting stage consumer", zap.String("stage", string(w.Stage())))
			if err := e.broker.Consume(ctx, w.Stage(), e.concurrency, w.HandleOnce); err != nil {
				e.logger.Warn("stage consumer stopped", zap.String("stage", string(w.Stage())), zap.Error(err))
			}
		}(w)
	}
	e.wg.Wait()
	return ctx.Err()
}
