package sqsbroker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeforge-run/orchestrator/internal/queue"
)

type wireMessage struct {
	JobID       string    `json:"job_id"`
	TenantID    string    `json:"tenant_id"`
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	DedupeToken string    `json:"dedupe_token,omitempty"`
}

func marshalMessage(msg queue.Message) (string, error) {
	b, err := json.Marshal(wireMessage{
		JobID:       msg.JobID,
		TenantID:    msg.TenantID,
		Attempt:     msg.Attempt,
		EnqueuedAt:  msg.EnqueuedAt,
		DedupeToken: msg.DedupeToken,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMessage(body string) (queue.Message, error) {
	var wm wireMessage
	if err := json.Unmarshal([]byte(body), &wm); err != nil {
		return queue.Message{}, fmt.Errorf("unmarshal queue message: %w", err)
	}
	return queue.Message{
		JobID:       wm.JobID,
		TenantID:    wm.TenantID,
		Attempt:     wm.Attempt,
		EnqueuedAt:  wm.EnqueuedAt,
		DedupeToken: wm.DedupeToken,
	}, nil
}
