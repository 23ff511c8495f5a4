package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CreativeStudio-server/config"
	"CreativeStudio-server/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeReconcileFrames = "frames:reconcile"

type ReconcilePayload struct {
	JobID string `json:"job_id"`
}

// Enqueuer 投递一次 reconcile；delay 为 0 时立即执行
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, jobID string, delay time.Duration) error
}

type QueueOptions struct {
	MaxRetry    int
	TaskTimeout time.Duration
}

type Queue struct {
	client *asynq.Client
	opts   QueueOptions
	log    *zap.Logger
}

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	}
}

func NewQueue(redis asynq.RedisClientOpt, opts QueueOptions, log *zap.Logger) *Queue {
	return &Queue{client: asynq.NewClient(redis), opts: opts, log: logger.OrNop(log)}
}

func NewReconcileTask(jobID string, opts QueueOptions) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	taskOpts := []asynq.Option{asynq.Retention(24 * time.Hour)}
	if opts.MaxRetry > 0 {
		taskOpts = append(taskOpts, asynq.MaxRetry(opts.MaxRetry))
	}
	if opts.TaskTimeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.TaskTimeout))
	}
	return asynq.NewTask(TypeReconcileFrames, payload, taskOpts...), nil
}

func (q *Queue) EnqueueReconcile(ctx context.Context, jobID string, delay time.Duration) error {
	task, err := NewReconcileTask(jobID, q.opts)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	q.log.Debug("reconcile enqueued", zap.String("job_id", jobID), zap.String("queue_task_id", info.ID), zap.Duration("delay", delay))
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
