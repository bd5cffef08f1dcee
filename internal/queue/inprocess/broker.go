// Package inprocess implements queue.Broker over k8s.io/client-go's
// rate-limiting workqueue, grounded on the teacher's internal/controller/
// queue.go + reconciler.go worker-pool pattern. One workqueue per pipeline
// stage; no external dependency, used for local runs and the test suite.
package inprocess

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/client-go/util/workqueue"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
)

// Per-queue throughput limit and retention policy, spec.md §4.4: "a rate
// limit of 10 messages / s applies per queue" and "completed messages
// retained 24 h (max 1000); failed messages retained 7 d".
const (
	perQueueRateLimit      rate.Limit = 10
	perQueueRateBurst                 = 10
	completedRetention                = 24 * time.Hour
	completedRetentionCap             = 1000
	failedRetention                   = 7 * 24 * time.Hour
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
)

// RetainedMessage is a snapshot of a message that finished processing
// (successfully or not), kept around for post-hoc inspection per the
// spec.md §4.4 retention policy.
type RetainedMessage struct {
	Message    queue.Message
	Stage      jobstate.Stage
	Outcome    string // outcomeCompleted or outcomeFailed
	FinishedAt time.Time
}

// Broker holds one rate-limiting workqueue per stage, a token-bucket
// throughput limiter per stage, and a retained-message ring per stage.
type Broker struct {
	mu          sync.Mutex
	queues      map[jobstate.Stage]workqueue.RateLimitingInterface
	limiters    map[jobstate.Stage]*rate.Limiter
	retained    map[jobstate.Stage][]RetainedMessage
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger
}

// New builds an in-process Broker. maxRetries bounds how many times in all
// (first delivery included) a message is delivered to a failing handler
// before it is dropped (the
// caller is expected to have already transitioned the job to a terminal
// status by then; the broker itself has no knowledge of job state).
func New(maxRetries int, baseBackoff, maxBackoff time.Duration, logger *zap.Logger) *Broker {
	return &Broker{
		queues:      make(map[jobstate.Stage]workqueue.RateLimitingInterface),
		limiters:    make(map[jobstate.Stage]*rate.Limiter),
		retained:    make(map[jobstate.Stage][]RetainedMessage),
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		logger:      logger.With(zap.String("component", "queue-inprocess")),
	}
}

var _ queue.Broker = (*Broker)(nil)

func (b *Broker) queueFor(stage jobstate.Stage) workqueue.RateLimitingInterface {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[stage]
	if !ok {
		rateLimiter := workqueue.NewItemExponentialFailureRateLimiter(b.baseBackoff, b.maxBackoff)
		q = workqueue.NewRateLimitingQueue(rateLimiter)
		b.queues[stage] = q
	}
	return q
}

// throughputLimiterFor returns stage's token-bucket limiter, separate from
// the workqueue's own item-level backoff rate limiter above: that one
// governs retry spacing for a single failing item, this one caps the
// queue's overall delivery rate regardless of retries.
func (b *Broker) throughputLimiterFor(stage jobstate.Stage) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[stage]
	if !ok {
		l = rate.NewLimiter(perQueueRateLimit, perQueueRateBurst)
		b.limiters[stage] = l
	}
	return l
}

func (b *Broker) Enqueue(ctx context.Context, stage jobstate.Stage, msg queue.Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	b.queueFor(stage).Add(msg)
	return nil
}

func (b *Broker) Consume(ctx context.Context, stage jobstate.Stage, concurrency int, handler queue.Handler) error {
	q := b.queueFor(stage)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.runWorker(ctx, stage, q, workerID, handler)
		}(i)
	}

	go func() {
		<-ctx.Done()
		q.ShutDown()
	}()

	wg.Wait()
	return ctx.Err()
}

func (b *Broker) runWorker(ctx context.Context, stage jobstate.Stage, q workqueue.RateLimitingInterface, workerID int, handler queue.Handler) {
	b.logger.Info("stage worker started", zap.String("stage", string(stage)), zap.Int("worker_id", workerID))
	for {
		item, shutdown := q.Get()
		if shutdown {
			b.logger.Info("stage worker stopped", zap.String("stage", string(stage)), zap.Int("worker_id", workerID))
			return
		}
		b.process(ctx, stage, q, item, handler)
	}
}

func (b *Broker) process(ctx context.Context, stage jobstate.Stage, q workqueue.RateLimitingInterface, item interface{}, handler queue.Handler) {
	defer q.Done(item)

	msg, ok := item.(queue.Message)
	if !ok {
		b.logger.Error("invalid item type in queue", zap.String("stage", string(stage)), zap.Any("item", item))
		q.Forget(item)
		return
	}
	msg.Attempt++

	if err := b.throughputLimiterFor(stage).Wait(ctx); err != nil {
		// ctx was cancelled while waiting for a token; leave the item for
		// a future delivery rather than dropping it.
		q.AddRateLimited(msg)
		return
	}

	if err := handler(ctx, msg); err != nil {
		if msg.Attempt >= b.maxRetries {
			b.logger.Error("stage handler exhausted retries, dropping message",
				zap.String("stage", string(stage)), zap.String("job_id", msg.JobID),
				zap.Int("attempt", msg.Attempt), zap.Error(err))
			b.recordOutcome(stage, msg, outcomeFailed)
			q.Forget(item)
			return
		}
		b.logger.Warn("stage handler failed, retrying",
			zap.String("stage", string(stage)), zap.String("job_id", msg.JobID),
			zap.Int("attempt", msg.Attempt), zap.Error(err))
		q.AddRateLimited(msg)
		return
	}
	b.recordOutcome(stage, msg, outcomeCompleted)
	q.Forget(item)
}

// recordOutcome appends msg's terminal outcome to stage's retained-message
// ring and prunes it to the spec.md §4.4 retention policy.
func (b *Broker) recordOutcome(stage jobstate.Stage, msg queue.Message, outcome string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	entries := append(b.retained[stage], RetainedMessage{
		Message:    msg,
		Stage:      stage,
		Outcome:    outcome,
		FinishedAt: now,
	})
	b.retained[stage] = pruneRetained(entries, now)
}

// Retained returns a snapshot of stage's retained messages (completed and
// failed), after pruning entries past their retention window.
func (b *Broker) Retained(stage jobstate.Stage) []RetainedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := pruneRetained(b.retained[stage], time.Now())
	b.retained[stage] = entries
	out := make([]RetainedMessage, len(entries))
	copy(out, entries)
	return out
}

// pruneRetained walks entries newest-first, dropping anything past its
// outcome's retention window and capping completed entries to
// completedRetentionCap (failed entries have no count cap, only the 7 d
// window), then restores chronological order.
func pruneRetained(entries []RetainedMessage, now time.Time) []RetainedMessage {
	if len(entries) == 0 {
		return entries
	}
	kept := make([]RetainedMessage, 0, len(entries))
	completedKept := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ttl := failedRetention
		if e.Outcome == outcomeCompleted {
			ttl = completedRetention
		}
		if now.Sub(e.FinishedAt) > ttl {
			continue
		}
		if e.Outcome == outcomeCompleted {
			if completedKept >= completedRetentionCap {
				continue
			}
			completedKept++
		}
		kept = append(kept, e)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// Close shuts down every stage queue that has been created so far.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		q.ShutDown()
	}
	return nil
}

// Reset drops the per-stage queue cache. Queues are created lazily on
// first Enqueue/Consume; after Close, a stale ShutDown queue would
// otherwise be handed back to a subsequent Start, rejecting every Add.
// Reset lets the broker be reused across a stop/start cycle by forcing
// fresh workqueue instances on next access.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = make(map[jobstate.Stage]workqueue.RateLimitingInterface)
}

var _ queue.Resettable = (*Broker)(nil)
