package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/mediastore"
	"clipforge/internal/pipeline"
	"clipforge/internal/transcode"
)

// Pool consumes transform jobs with a fixed number of workers.
type Pool struct {
	coordinator *pipeline.Coordinator
	jobs        *jobqueue.Store
	media       *mediastore.Store
	invoker     transcode.Invoker
	logger      *slog.Logger

	count        int
	poll         time.Duration
	heartbeat    time.Duration
	maxAttempts  int
	retryBackoff time.Duration

	watchdogPoll  time.Duration
	maxProcessing time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a pool from configuration.
func New(cfg *config.Config, coordinator *pipeline.Coordinator, jobs *jobqueue.Store, media *mediastore.Store, invoker transcode.Invoker, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		coordinator:   coordinator,
		jobs:          jobs,
		media:         media,
		invoker:       invoker,
		logger:        logger.With(logging.String(logging.FieldComponent, "workers")),
		count:         cfg.Workers.Count,
		poll:          time.Duration(cfg.Workers.PollInterval) * time.Second,
		heartbeat:     time.Duration(cfg.Workers.HeartbeatInterval) * time.Second,
		maxAttempts:   cfg.Workers.MaxAttempts,
		retryBackoff:  time.Duration(cfg.Workers.RetryBackoffSeconds) * time.Second,
		watchdogPoll:  time.Duration(cfg.Workers.WatchdogPollSeconds) * time.Second,
		maxProcessing: time.Duration(cfg.Workers.MaxProcessingSeconds) * time.Second,
	}
}

// Start launches the workers and the watchdog. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.runWorker(runCtx, worker)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runWatchdog(runCtx)
	}()

	p.logger.Info("worker pool started", logging.Int("workers", p.count))
}

// Stop cancels the pool and waits for in-flight work to wind down.
// Interrupted jobs keep their lease and are redelivered after it expires.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, worker int) {
	logger := p.logger.With(logging.Int("worker", worker))
	for {
		job, err := p.jobs.Dequeue(ctx, p.poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue", logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.poll):
			}
			continue
		}
		p.process(ctx, logger, job)
	}
}

// process runs one claimed job end to end. It settles the job through
// the coordinator except when the context is canceled, in which case
// the lease is left to expire and the job to redeliver.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *jobqueue.Job) {
	logger = logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldArtifactID, job.ArtifactID),
		logging.String(logging.FieldJobKind, string(job.Kind)),
		logging.Int("attempt", job.Attempts),
	)
	logger.Info("job claimed")

	params, err := transcode.DecodeParams(job.Kind, job.ParamsJSON)
	if err != nil {
		p.settleFailure(ctx, logger, job, fmt.Sprintf("decode params: %v", err))
		return
	}

	if err := p.coordinator.OnJobStarted(ctx, job); err != nil {
		p.settleFailure(ctx, logger, job, fmt.Sprintf("start job: %v", err))
		return
	}

	art, _, err := p.coordinator.GetStatus(ctx, job.ArtifactID)
	if err != nil {
		p.settleFailure(ctx, logger, job, fmt.Sprintf("load artifact: %v", err))
		return
	}
	source, err := p.media.Resolve(art.CurrentPath)
	if err != nil {
		p.settleFailure(ctx, logger, job, fmt.Sprintf("resolve source: %v", err))
		return
	}
	dest := p.media.WriteOutput(job.Kind, filepath.Base(source))

	stopHeartbeat := p.startHeartbeat(ctx, logger, job.ID)
	runErr := p.invoker.Run(ctx, job.Kind, source, params, dest)
	stopHeartbeat()

	if runErr == nil {
		if !p.media.Exists(dest) {
			p.settleFailure(ctx, logger, job, "transform reported success but produced no output")
			return
		}
		if err := p.coordinator.OnJobCompleted(ctx, job.ID, pipeline.Outcome{Succeeded: true, OutputPath: dest}); err != nil {
			logger.Error("settle success", logging.Error(err))
		}
		return
	}

	if ctx.Err() != nil {
		logger.Info("job interrupted by shutdown; leaving lease to expire")
		return
	}

	var typed *transcode.Error
	retryable := errors.As(runErr, &typed) && typed.Retryable()
	if retryable && job.Attempts < p.maxAttempts {
		backoff := time.Duration(job.Attempts) * p.retryBackoff
		logger.Warn("job failed; will retry",
			logging.Error(runErr),
			logging.Duration("backoff", backoff),
		)
		if err := p.jobs.Nack(ctx, job.ID, true, backoff, runErr.Error()); err != nil {
			logger.Error("nack", logging.Error(err))
		}
		return
	}

	p.settleFailure(ctx, logger, job, runErr.Error())
}

func (p *Pool) settleFailure(ctx context.Context, logger *slog.Logger, job *jobqueue.Job, message string) {
	logger.Error("job failed permanently", logging.String("reason", message))
	if err := p.coordinator.OnJobCompleted(ctx, job.ID, pipeline.Outcome{Succeeded: false, Message: message}); err != nil {
		logger.Error("settle failure", logging.Error(err))
	}
}

// startHeartbeat extends the job lease on an interval until the returned
// stop function is called.
func (p *Pool) startHeartbeat(ctx context.Context, logger *slog.Logger, jobID string) func() {
	done := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.jobs.ExtendLease(ctx, jobID); err != nil {
					logger.Warn("extend lease", logging.Error(err))
				}
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

func (p *Pool) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(p.watchdogPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := p.jobs.ExpireOverdue(ctx, p.maxAttempts, p.maxProcessing)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("watchdog sweep", logging.Error(err))
				}
				continue
			}
			if len(expired) == 0 {
				continue
			}
			p.logger.Warn("watchdog expired jobs", logging.Int("count", len(expired)))
			p.coordinator.SettleExpired(ctx, expired)
		}
	}
}
