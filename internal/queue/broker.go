// Package queue defines the queue substrate seam: one logical queue per
// pipeline stage, behind a Broker interface with two interchangeable
// bindings (internal/queue/inprocess, internal/queue/sqsbroker).
package queue

import (
	"context"
	"time"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
)

// Message is one unit of work enqueued for a pipeline stage: which job, for
// which tenant, and how many times this stage has already attempted it.
type Message struct {
	JobID       string
	TenantID    string
	Attempt     int
	EnqueuedAt  time.Time
	DedupeToken string // caller-assigned; brokers that support dedup (SQS FIFO) use this verbatim
}

// Handler processes one Message for a stage. Returning an error tells the
// broker to retry (subject to the broker's own retry/backoff policy);
// returning nil acknowledges the message.
type Handler func(ctx context.Context, msg Message) error

// Broker is the queue substrate every pipeline Worker is built against. A
// Job's movement between stages is just successive Enqueue calls on
// different jobstate.Stage queues; nothing in pipeline cares which binding
// is active.
type Broker interface {
	// Enqueue places msg on stage's queue.
	Enqueue(ctx context.Context, stage jobstate.Stage, msg Message) error
	// Consume runs handler for every message delivered to stage's queue,
	// using concurrency workers, until ctx is cancelled or Close is called.
	// Consume blocks until its workers have drained.
	Consume(ctx context.Context, stage jobstate.Stage, concurrency int, handler Handler) error
	// Close signals every Consume loop to stop accepting new work and
	// waits for in-flight handlers to finish.
	Close() error
}

// Resettable is implemented by brokers that lazily cache per-stage queue
// instances (e.g. the in-process workqueue binding). Reset drops that
// cache after Close so a subsequent Start opens fresh instances instead
// of handing back ones already shut down. Brokers with no such cache
// (e.g. sqsbroker, whose queue URLs are fixed at construction) need not
// implement it.
type Resettable interface {
	Reset()
}
