package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/queue"
)

// Lifecycle owns the process-wide start/stop of a WorkerEngine bound over
// a queue.Broker: Start launches the engine in the background, Stop
// cancels it and waits up to drainTimeout for in-flight handlers before
// closing the broker. Grounded on the teacher's Reconciler.Start/Stop
// (own cancellable context, own done channel, select-on-timeout shutdown).
type Lifecycle struct {
	engine       WorkerEngine
	broker       queue.Broker
	drainTimeout time.Duration
	addr         string
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

// NewLifecycle builds a Lifecycle over the given engine and broker. addr
// is passed through to WorkerEngine.Start verbatim (a durable engine binds
// it as a listen address; the in-process engine ignores it).
func NewLifecycle(engine WorkerEngine, broker queue.Broker, drainTimeout time.Duration, addr string, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		engine:       engine,
		broker:       broker,
		drainTimeout: drainTimeout,
		addr:         addr,
		logger:       logger.With(zap.String("component", "pipeline-lifecycle")),
	}
}

// Start registers the engine's handlers, then launches Engine.Start in the
// background. It returns once Register completes; Engine.Start's error (if
// any) surfaces from Stop.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.engine.Register(ctx); err != nil {
		return fmt.Errorf("pipeline: lifecycle register %s engine: %w", l.engine.Name(), err)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan error, 1)

	l.logger.Info("starting pipeline engine", zap.String("engine", l.engine.Name()))
	go func() {
		l.done <- l.engine.Start(l.ctx, l.addr)
	}()
	return nil
}

// Stop signals the engine to drain, waits up to drainTimeout for it to
// return, then closes the broker. If the broker lazily caches per-stage
// queue instances (queue.Resettable), that cache is reset so a subsequent
// Start opens fresh ones instead of reusing already-closed queues.
func (l *Lifecycle) Stop() error {
	if l.cancel == nil {
		return nil
	}
	l.logger.Info("stopping pipeline engine", zap.String("engine", l.engine.Name()))
	l.cancel()

	var engineErr error
	select {
	case err := <-l.done:
		if err != nil && err != context.Canceled {
			engineErr = err
		}
	case <-time.After(l.drainTimeout):
		l.logger.Warn("pipeline engine drain timeout exceeded, closing broker anyway",
			zap.Duration("drain_timeout", l.drainTimeout))
	}

	closeErr := l.broker.Close()
	if r, ok := l.broker.(queue.Resettable); ok {
		r.Reset()
	}

	if engineErr != nil {
		return fmt.Errorf("pipeline: engine stopped with error: %w", engineErr)
	}
	if closeErr != nil {
		return fmt.Errorf("pipeline: broker close: %w", closeErr)
	}
	return nil
}
