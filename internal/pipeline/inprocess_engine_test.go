package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
)

type countingWorker struct {
	stage jobstate.Stage
	calls int32
}

func (w *countingWorker) Stage() jobstate.Stage { return w.stage }
func (w *countingWorker) HandleOnce(ctx context.Context, msg queue.Message) error {
	atomic.AddInt32(&w.calls, 1)
	return nil
}

func TestInProcessEngine_StartStopsOnCancel(t *testing.T) {
	broker := newFakeBroker()
	w := &countingWorker{stage: jobstate.StagePlanning}

	engine := NewInProcessEngine(broker, []StageWorker{w}, 1, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := engine.Start(ctx, ""); err == nil {
		t.Error("expected Start() to return ctx.Err() after cancellation")
	}
}

func TestInProcessEngine_Name(t *testing.T) {
	engine := NewInProcessEngine(newFakeBroker(), nil, 1, zap.NewNop())
	if engine.Name() != "inprocess" {
		t.Errorf("Name() = %q, want %q", engine.Name(), "inprocess")
	}
}
