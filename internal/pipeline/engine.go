package pipeline

import (
	"context"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
)

// WorkerEngine is the execution substrate that runs the four stage worker
// pools. The default binding runs them in-process against the queue
// broker; a second binding can register the same handlers as durable,
// journaled executions (e.g. Restate service handlers) without
// changing a line of worker logic.
type WorkerEngine interface {
	// Name identifies the engine binding, for config selection and logging.
	Name() string

	// Register performs any one-time registration the backend requires
	// before Start is called (e.g. announcing handlers to a control plane).
	Register(ctx context.Context) error

	// Start runs the engine until ctx is cancelled.
	Start(ctx context.Context, addr string) error
}

// StageWorker is implemented by each of the four stage workers. It is the
// seam a WorkerEngine binds against: the in-process engine drives it via
// queue.Broker.Consume, a durable engine binds it to a service
// handler, in either case the same HandleOnce executes the stage logic.
type StageWorker interface {
	Stage() jobstate.Stage
	HandleOnce(ctx context.Context, msg queue.Message) error
}
