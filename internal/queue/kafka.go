package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers     []string
	GroupID     string
	JobsTopic   string
	RetryTopic  string
	DLQTopic    string
	EventsTopic string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Kafka implements Consumer on top of Kafka topics: jobs are claimed from the
// jobs topic, retryable failures are re-enqueued through the retry topic with
// an exponential delay, exhausted jobs land in the DLQ, and every outcome is
// emitted on the events topic.
type Kafka struct {
	cfg    KafkaConfig
	logger zerolog.Logger
	acks   *ackTracker

	reader      *kafka.Reader
	retryReader *kafka.Reader
	jobsWriter  *kafka.Writer
	retryWriter *kafka.Writer
	dlqWriter   *kafka.Writer
	eventWriter *kafka.Writer
}

func NewKafka(cfg KafkaConfig, logger zerolog.Logger) *Kafka {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		}
	}
	return &Kafka{
		cfg:    cfg,
		logger: logger,
		acks:   newAckTracker(),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   cfg.JobsTopic,
		}),
		retryReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID + "-retry",
			Topic:   cfg.RetryTopic,
		}),
		jobsWriter:  newWriter(cfg.JobsTopic),
		retryWriter: newWriter(cfg.RetryTopic),
		dlqWriter:   newWriter(cfg.DLQTopic),
		eventWriter: newWriter(cfg.EventsTopic),
	}
}

func (k *Kafka) Fetch(ctx context.Context) (Claim, error) {
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			return Claim{}, fmt.Errorf("fetch job: %w", err)
		}
		k.acks.claim(m)
		var job Job
		if err := json.Unmarshal(m.Value, &job); err != nil {
			k.logger.Error().Err(err).Msg("discarding malformed job payload")
			if done, ok := k.acks.done(m); ok {
				_ = k.reader.CommitMessages(ctx, done)
			}
			continue
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		job.Status = StatusProcessing
		return Claim{Job: job, msg: m}, nil
	}
}

func (k *Kafka) Complete(ctx context.Context, c Claim, res Result) error {
	if err := k.emitEvent(ctx, c.Job, res); err != nil {
		return err
	}
	return k.commit(ctx, c)
}

func (k *Kafka) Fail(ctx context.Context, c Claim, res Result, retryable bool) error {
	job := c.Job
	job.Attempt++
	job.FailureReason = res.Error

	if retryable && job.Attempt < k.cfg.MaxAttempts {
		job.NotBefore = time.Now().UTC().Add(k.retryDelay(job.Attempt))
		if err := k.write(ctx, k.retryWriter, job); err != nil {
			return fmt.Errorf("re-enqueue job %s: %w", job.ID, err)
		}
		k.logger.Info().Str("job_id", job.ID).Int("attempt", job.Attempt).
			Time("not_before", job.NotBefore).Msg("job scheduled for retry")
	} else {
		job.Status = StatusFailed
		if err := k.write(ctx, k.dlqWriter, job); err != nil {
			return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
		}
		k.logger.Error().Str("job_id", job.ID).Int("attempt", job.Attempt).
			Str("reason", job.FailureReason).Msg("job dead-lettered")
	}

	if err := k.emitEvent(ctx, c.Job, res); err != nil {
		return err
	}
	return k.commit(ctx, c)
}

// retryDelay doubles per attempt from the base, capped at MaxDelay.
func (k *Kafka) retryDelay(attempt int) time.Duration {
	d := k.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= k.cfg.MaxDelay || d <= 0 {
			return k.cfg.MaxDelay
		}
	}
	if d > k.cfg.MaxDelay {
		return k.cfg.MaxDelay
	}
	return d
}

// RunRetryForwarder moves due jobs from the retry topic back onto the jobs
// topic, sleeping until each job's not_before.
func (k *Kafka) RunRetryForwarder(ctx context.Context) error {
	for {
		m, err := k.retryReader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch retry job: %w", err)
		}
		var job Job
		if err := json.Unmarshal(m.Value, &job); err != nil {
			k.logger.Error().Err(err).Msg("discarding malformed retry payload")
			_ = k.retryReader.CommitMessages(ctx, m)
			continue
		}
		if wait := time.Until(job.NotBefore); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := k.write(ctx, k.jobsWriter, job); err != nil {
			return fmt.Errorf("forward retry job %s: %w", job.ID, err)
		}
		if err := k.retryReader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit retry job: %w", err)
		}
	}
}

func (k *Kafka) emitEvent(ctx context.Context, job Job, res Result) error {
	event := map[string]any{
		"job_id":         job.ID,
		"type":           res.Type,
		"success":        res.Success,
		"processingTime": res.ProcessingMS,
		"attempt":        job.Attempt,
		"emitted_at":     time.Now().UTC(),
	}
	if res.Error != "" {
		event["error"] = res.Error
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	return k.eventWriter.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: payload})
}

func (k *Kafka) write(ctx context.Context, w *kafka.Writer, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: payload})
}

// commit releases the claim's offset through the ack tracker. With concurrent
// claims from one partition the actual Kafka commit may be deferred until the
// earlier ones finish; a crash before then re-delivers all of them.
func (k *Kafka) commit(ctx context.Context, c Claim) error {
	m, ok := k.acks.done(c.msg)
	if !ok {
		return nil
	}
	if err := k.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit job %s: %w", c.Job.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	for _, c := range []interface{ Close() error }{
		k.reader, k.retryReader, k.jobsWriter, k.retryWriter, k.dlqWriter, k.eventWriter,
	} {
		_ = c.Close()
	}
	return nil
}
