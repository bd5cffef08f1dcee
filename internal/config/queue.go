package config

import (
	"fmt"
	"time"
)

// QueueConfig selects and tunes the queue.Broker binding.
type QueueConfig struct {
	// Provider: "inprocess" (default, test-friendly) or "sqs".
	Provider string `mapstructure:"provider" env:"QUEUE_PROVIDER" default:"inprocess"`

	MaxRetries       int           `mapstructure:"max_retries" env:"QUEUE_MAX_RETRIES" default:"3"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff" env:"QUEUE_BASE_BACKOFF" default:"2s"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" env:"QUEUE_MAX_BACKOFF" default:"5m"`
	RateLimitPerSec  float64       `mapstructure:"rate_limit_per_sec" env:"QUEUE_RATE_LIMIT_PER_SEC" default:"10"`
	ConcurrencyPerQueue int        `mapstructure:"concurrency_per_queue" env:"QUEUE_CONCURRENCY_PER_QUEUE" default:"5"`
	CompletedRetention  time.Duration `mapstructure:"completed_retention" env:"QUEUE_COMPLETED_RETENTION" default:"24h"`
	FailedRetention     time.Duration `mapstructure:"failed_retention" env:"QUEUE_FAILED_RETENTION" default:"168h"`

	SQS SQSConfig `mapstructure:"sqs"`
}

// SQSConfig addresses the AWS SQS broker binding. One FIFO queue URL per
// stage name is expected, keyed by the literal stage names.
type SQSConfig struct {
	Region        string            `mapstructure:"region" env:"QUEUE_SQS_REGION" default:"us-west-2"`
	QueueURLs     map[string]string `mapstructure:"queue_urls"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" env:"QUEUE_SQS_VISIBILITY_TIMEOUT" default:"30s"`
}

func (q *QueueConfig) Validate() error {
	switch q.Provider {
	case "inprocess", "sqs":
	default:
		return fmt.Errorf("invalid queue provider: %s (supported: inprocess, sqs)", q.Provider)
	}
	if q.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if q.ConcurrencyPerQueue < 1 {
		return fmt.Errorf("concurrency per queue must be at least 1")
	}
	if q.Provider == "sqs" && len(q.SQS.QueueURLs) == 0 {
		return fmt.Errorf("sqs provider requires queue_urls for every stage")
	}
	return nil
}
