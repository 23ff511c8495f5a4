package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CreativeStudio-server/framegen"
	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const maxBackoff = 5 * time.Minute

type JobReconciler interface {
	Reconcile(ctx context.Context, jobID string) (*framegen.Outcome, error)
}

type ProcessorOptions struct {
	PollInterval time.Duration
	Concurrency  int
}

// Processor 队列消费者：驱动 Reconciler，并决定重新入队、重试还是进入死信
type Processor struct {
	reconciler JobReconciler
	jobs       framegen.JobStore
	queue      Enqueuer
	opts       ProcessorOptions
	log        *zap.Logger
	retryInfo  func(ctx context.Context) (retried, maxRetry int, ok bool)
}

func asynqRetryInfo(ctx context.Context) (int, int, bool) {
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return retried, maxRetry, ok1 && ok2
}

func NewProcessor(reconciler JobReconciler, jobs framegen.JobStore, queue Enqueuer, opts ProcessorOptions, log *zap.Logger) *Processor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &Processor{
		reconciler: reconciler,
		jobs:       jobs,
		queue:      queue,
		opts:       opts,
		log:        logger.OrNop(log),
		retryInfo:  asynqRetryInfo,
	}
}

// Start 启动任务消费者，返回的 server 由调用方负责 Shutdown
func (p *Processor) Start(redis asynq.RedisClientOpt) (*asynq.Server, error) {
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: p.opts.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			return p.backoff(n)
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconcileFrames, p.HandleReconcile)

	p.log.Info("starting frame processor", zap.Int("concurrency", p.opts.Concurrency))
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("start asynq server: %w", err)
	}
	return srv, nil
}

func (p *Processor) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("job_id", payload.JobID))

	job, err := p.jobs.GetJob(ctx, payload.JobID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusDeadLetter:
		log.Debug("job already settled", zap.String("status", job.Status))
		return nil
	}

	job.Status = models.JobStatusRunning
	job.Attempts++
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	out, err := p.reconciler.Reconcile(ctx, job.ID)
	switch {
	case err == nil:
		if out.Status == models.JobStatusPending {
			return p.queue.EnqueueReconcile(ctx, job.ID, p.opts.PollInterval)
		}
		log.Info("job settled", zap.String("status", out.Status), zap.String("progress", out.Progress))
		return nil
	case framegen.IsStructural(err):
		log.Error("job is malformed", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return p.deferJob(ctx, job.ID, err, log)
	}
}

// deferJob 超时或持久化失败：重试次数未耗尽时退回 PENDING 并带退避时间，否则进入死信
func (p *Processor) deferJob(ctx context.Context, jobID string, cause error, log *zap.Logger) error {
	retried, maxRetry, fromQueue := p.retryInfo(ctx)

	// 用独立的 ctx 落库，任务超时后也能写回状态
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	job, err := p.jobs.GetJob(saveCtx, jobID)
	if err != nil {
		log.Error("reload job failed", zap.Error(err))
		return cause
	}
	job.Error = cause.Error()

	if fromQueue && retried >= maxRetry {
		job.Status = models.JobStatusDeadLetter
		job.NextAttemptAt = nil
		if err := p.jobs.SaveJob(saveCtx, job); err != nil {
			log.Error("save dead letter job failed", zap.Error(err))
		}
		log.Error("job moved to dead letter", zap.Int("retried", retried), zap.Error(cause))
		return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
	}

	next := time.Now().Add(p.backoff(retried))
	job.Status = models.JobStatusPending
	job.NextAttemptAt = &next
	if err := p.jobs.SaveJob(saveCtx, job); err != nil {
		log.Error("save deferred job failed", zap.Error(err))
	}
	if errors.Is(cause, framegen.ErrTimeout) {
		log.Warn("reconcile timed out, result unknown", zap.Int("retried", retried), zap.Time("next_attempt_at", next))
	} else {
		log.Warn("reconcile deferred", zap.Int("retried", retried), zap.Time("next_attempt_at", next), zap.Error(cause))
	}
	return cause
}

// backoff 以轮询间隔为基数指数退避
func (p *Processor) backoff(retried int) time.Duration {
	d := p.opts.PollInterval
	for i := 0; i < retried && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
