// Package sqsbroker implements queue.Broker over Amazon SQS, repurposing
// the teacher's aws-sdk-go-v2 dependency (originally used for ECS/STS
// compute provisioning, for which this domain has no equivalent) as a
// second, durable queue substrate binding. One FIFO queue URL per pipeline
// stage is expected in config.SQSConfig.QueueURLs, keyed by the stage's
// literal name.
package sqsbroker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
)

// Broker sends/receives queue.Message as SQS message bodies (JSON-encoded)
// against one queue URL per stage.
type Broker struct {
	client            *sqs.Client
	queueURLs         map[jobstate.Stage]string
	visibilityTimeout int32
	logger            *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a Broker from an already-configured sqs.Client and a
// stage-name-keyed map of queue URLs.
func New(client *sqs.Client, queueURLsByStageName map[string]string, visibilityTimeout time.Duration, logger *zap.Logger) (*Broker, error) {
	urls := make(map[jobstate.Stage]string, len(jobstate.Stages))
	for _, stage := range jobstate.Stages {
		url, ok := queueURLsByStageName[string(stage)]
		if !ok {
			return nil, fmt.Errorf("sqsbroker: missing queue url for stage %q", stage)
		}
		urls[stage] = url
	}
	return &Broker{
		client:            client,
		queueURLs:         urls,
		visibilityTimeout: int32(visibilityTimeout.Seconds()),
		logger:            logger.With(zap.String("component", "queue-sqs")),
		closed:            make(chan struct{}),
	}, nil
}

var _ queue.Broker = (*Broker)(nil)

func (b *Broker) Enqueue(ctx context.Context, stage jobstate.Stage, msg queue.Message) error {
	url, ok := b.queueURLs[stage]
	if !ok {
		return fmt.Errorf("sqsbroker: unknown stage %q", stage)
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	dedupe := msg.DedupeToken
	if dedupe == "" {
		// Idempotent re-enqueue of the same job into the same stage should
		// collapse to one message within SQS's 5-minute FIFO dedup window.
		dedupe = fmt.Sprintf("%s-%s-%d", stage, msg.JobID, msg.Attempt)
	}
	body, err := marshalMessage(msg)
	if err != nil {
		return fmt.Errorf("sqsbroker: marshal message: %w", err)
	}

	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(url),
		MessageBody:            aws.String(body),
		MessageDeduplicationId: aws.String(dedupe),
		MessageGroupId:         aws.String(msg.TenantID),
	})
	if err != nil {
		return fmt.Errorf("sqsbroker: send message: %w", err)
	}
	return nil
}

func (b *Broker) Consume(ctx context.Context, stage jobstate.Stage, concurrency int, handler queue.Handler) error {
	url, ok := b.queueURLs[stage]
	if !ok {
		return fmt.Errorf("sqsbroker: unknown stage %q", stage)
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.pollLoop(ctx, stage, url, workerID, handler)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Broker) pollLoop(ctx context.Context, stage jobstate.Stage, url string, workerID int, handler queue.Handler) {
	b.logger.Info("stage poller started", zap.String("stage", string(stage)), zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		default:
		}

		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     10,
			VisibilityTimeout:   b.visibilityTimeout,
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			b.logger.Warn("receive message failed", zap.String("stage", string(stage)), zap.Error(err))
			continue
		}

		for _, m := range out.Messages {
			b.handleOne(ctx, stage, url, m, handler)
		}
	}
}

func (b *Broker) handleOne(ctx context.Context, stage jobstate.Stage, url string, m types.Message, handler queue.Handler) {
	msg, err := unmarshalMessage(aws.ToString(m.Body))
	if err != nil {
		b.logger.Error("invalid message body, discarding", zap.String("stage", string(stage)), zap.Error(err))
		b.delete(ctx, url, m.ReceiptHandle)
		return
	}
	msg.Attempt++

	if err := handler(ctx, msg); err != nil {
		b.logger.Warn("stage handler failed, leaving message for SQS redelivery",
			zap.String("stage", string(stage)), zap.String("job_id", msg.JobID), zap.Error(err))
		return
	}
	b.delete(ctx, url, m.ReceiptHandle)
}

func (b *Broker) delete(ctx context.Context, url string, receiptHandle *string) {
	if _, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: receiptHandle,
	}); err != nil {
		b.logger.Warn("delete message failed", zap.Error(err))
	}
}

func (b *Broker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
