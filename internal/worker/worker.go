// Package worker runs the bounded-concurrency job pool: it claims jobs from
// the queue, runs each through the dispatcher, and always reports a structured
// result back so the queue's retry and dead-letter bookkeeping stays uniform.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/notify-worker/internal/common"
	"github.com/example/notify-worker/internal/dispatcher"
	"github.com/example/notify-worker/internal/notify"
	"github.com/example/notify-worker/internal/provider"
	"github.com/example/notify-worker/internal/queue"
)

const DefaultConcurrency = 10

const recentResultCap = 100

var (
	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_completed_total",
		Help: "Jobs finished successfully, by channel",
	}, []string{"channel"})
	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_failed_total",
		Help: "Jobs that returned a failure result, by channel",
	}, []string{"channel"})
	jobsStalled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_jobs_stalled_total",
		Help: "Jobs whose processing outlived the queue claim window",
	})
	workerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_errors_total",
		Help: "Errors reporting job outcomes back to the queue",
	})
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_job_duration_seconds",
		Help:    "End-to-end job processing time",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
)

// JobRecord is one completed job as served by the metrics endpoint.
type JobRecord struct {
	JobID        string    `json:"job_id"`
	Channel      string    `json:"channel"`
	Success      bool      `json:"success"`
	ProcessingMS int64     `json:"processingTime"`
	Error        string    `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

type Pool struct {
	Queue        queue.Consumer
	Dispatcher   *dispatcher.Dispatcher
	Concurrency  int
	ClaimTimeout time.Duration
	Logger       zerolog.Logger

	closing atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	recent []JobRecord
}

// Healthy reports whether the pool is still accepting jobs.
func (p *Pool) Healthy() bool { return !p.closing.Load() }

// Recent returns the most recent completed-job records, newest first.
func (p *Pool) Recent() []JobRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]JobRecord, len(p.recent))
	copy(out, p.recent)
	return out
}

// Run claims jobs until ctx is done, keeping at most Concurrency jobs in
// flight. On shutdown it stops claiming and drains in-flight jobs before
// returning.
func (p *Pool) Run(ctx context.Context) error {
	if p.Queue == nil || p.Dispatcher == nil {
		return errors.New("worker pool requires a queue and a dispatcher")
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)

	// In-flight jobs must outlive the claim context so a shutdown signal
	// drains instead of aborting provider calls mid-send.
	jobCtx := context.WithoutCancel(ctx)

	var runErr error
	for {
		claim, err := p.Queue.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				runErr = err
			}
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Claimed but shutting down; process it anyway so the claim is
			// not abandoned mid-flight.
			sem <- struct{}{}
		}
		p.wg.Add(1)
		go func(c queue.Claim) {
			defer p.wg.Done()
			defer func() { <-sem }()
			p.process(jobCtx, c)
		}(claim)
		if ctx.Err() != nil {
			break
		}
	}

	p.closing.Store(true)
	p.Logger.Info().Msg("worker draining in-flight jobs")
	p.wg.Wait()
	return runErr
}

func (p *Pool) process(ctx context.Context, claim queue.Claim) {
	job := claim.Job
	ctx, span := otel.Tracer("worker").Start(ctx, "process_job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("notification.channel", jobType(&job)),
	)

	logger := common.WithContext(ctx, p.Logger).With().
		Str("job_id", job.ID).
		Str("channel", jobType(&job)).
		Logger()

	start := time.Now()
	err := p.dispatch(ctx, &job)
	elapsed := time.Since(start)

	res := queue.Result{
		JobID:        job.ID,
		Type:         jobType(&job),
		Success:      err == nil,
		ProcessingMS: elapsed.Milliseconds(),
	}

	jobDuration.WithLabelValues(res.Type).Observe(elapsed.Seconds())
	if p.ClaimTimeout > 0 && elapsed > p.ClaimTimeout {
		// The queue claim has likely expired; the job may be re-delivered or
		// flagged as poisoned by the queue layer.
		jobsStalled.Inc()
		logger.Warn().Dur("elapsed", elapsed).Dur("claim_timeout", p.ClaimTimeout).Msg("job stalled")
	}

	var reportErr error
	if err == nil {
		jobsCompleted.WithLabelValues(res.Type).Inc()
		logger.Info().Dur("processing_time", elapsed).Msg("job completed")
		reportErr = p.Queue.Complete(ctx, claim, res)
	} else {
		res.Error = err.Error()
		jobsFailed.WithLabelValues(res.Type).Inc()
		logger.Error().Err(err).Dur("processing_time", elapsed).Msg("job failed")
		reportErr = p.Queue.Fail(ctx, claim, res, provider.IsRetryable(err))
	}
	if reportErr != nil {
		span.RecordError(reportErr)
		workerErrors.Inc()
		logger.Error().Err(reportErr).Msg("worker error reporting job outcome")
	}

	p.record(res)
}

// dispatch never lets a panic escape; the handler always yields a result.
// Batch jobs fan out through DispatchBatch and only complete once every
// request has settled.
func (p *Pool) dispatch(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	if job.IsBatch() {
		reqs := make([]*notify.Request, len(job.Batch))
		for i := range job.Batch {
			reqs[i] = &job.Batch[i]
		}
		return p.Dispatcher.DispatchBatch(ctx, reqs)
	}
	return p.Dispatcher.Dispatch(ctx, &job.Request)
}

func jobType(job *queue.Job) string {
	if job.IsBatch() {
		return "batch"
	}
	return string(job.Request.Channel)
}

func (p *Pool) record(res queue.Result) {
	rec := JobRecord{
		JobID:        res.JobID,
		Channel:      res.Type,
		Success:      res.Success,
		ProcessingMS: res.ProcessingMS,
		Error:        res.Error,
		CompletedAt:  time.Now().UTC(),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append([]JobRecord{rec}, p.recent...)
	if len(p.recent) > recentResultCap {
		p.recent = p.recent[:recentResultCap]
	}
}
