// Package queue models the durable job queue the worker consumes from. The
// claim/ack/retry protocol belongs to the queue layer; the worker only hands
// back structured results.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/notify-worker/internal/notify"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job wraps queued notification work. The wire "data" field is either a single
// request object or an array of them; an array makes the job a batch and fills
// Batch instead of Request.
type Job struct {
	ID            string           `json:"id"`
	Request       notify.Request   `json:"-"`
	Batch         []notify.Request `json:"-"`
	Attempt       int              `json:"attempt,omitempty"`
	CreatedAt     time.Time        `json:"created_at,omitempty"`
	NotBefore     time.Time        `json:"not_before,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Status        Status           `json:"-"`
}

// IsBatch reports whether the job fans out to multiple requests.
func (j *Job) IsBatch() bool { return len(j.Batch) > 0 }

func (j *Job) UnmarshalJSON(b []byte) error {
	type jobAlias Job
	aux := struct {
		*jobAlias
		Data json.RawMessage `json:"data"`
	}{jobAlias: (*jobAlias)(j)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	data := bytes.TrimSpace(aux.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '[':
		return json.Unmarshal(data, &j.Batch)
	default:
		return json.Unmarshal(data, &j.Request)
	}
}

func (j Job) MarshalJSON() ([]byte, error) {
	type jobAlias Job
	aux := struct {
		jobAlias
		Data any `json:"data"`
	}{jobAlias: jobAlias(j)}
	if j.IsBatch() {
		aux.Data = j.Batch
	} else {
		aux.Data = j.Request
	}
	return json.Marshal(aux)
}

// Result is the structured outcome the worker records for a job.
type Result struct {
	JobID        string `json:"job_id"`
	Type         string `json:"type"`
	Success      bool   `json:"success"`
	ProcessingMS int64  `json:"processingTime"`
	Error        string `json:"error,omitempty"`
}

// Claim is one in-flight job handed to the worker. The embedded message is the
// queue implementation's ack token.
type Claim struct {
	Job Job

	msg kafka.Message
}

// Consumer is the queue contract the worker runs against.
type Consumer interface {
	// Fetch blocks until a job is claimed or ctx is done.
	Fetch(ctx context.Context) (Claim, error)
	// Complete acks the claim and records a success result.
	Complete(ctx context.Context, c Claim, res Result) error
	// Fail acks the claim and hands the job back to the queue's retry policy.
	// Non-retryable failures dead-letter immediately.
	Fail(ctx context.Context, c Claim, res Result, retryable bool) error
	Close() error
}
