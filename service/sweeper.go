package service

import (
	"context"
	"fmt"
	"time"

	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepBatch = 100

type StaleJobStore interface {
	ListStalePendingJobs(ctx context.Context, untouchedSince, now time.Time, limit int) ([]models.Job, error)
	Touch(ctx context.Context, jobID string) error
}

// Sweeper 兜底：把长时间没人处理的 PENDING job 重新入队
type Sweeper struct {
	jobs       StaleJobStore
	queue      Enqueuer
	staleAfter time.Duration
	cron       *cron.Cron
	log        *zap.Logger
	now        func() time.Time
}

func NewSweeper(jobs StaleJobStore, queue Enqueuer, staleAfter time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		queue:      queue,
		staleAfter: staleAfter,
		log:        logger.OrNop(log),
		now:        time.Now,
	}
}

func (s *Sweeper) Start(spec string) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("sweeper started", zap.String("schedule", spec), zap.Duration("stale_after", s.staleAfter))
	return nil
}

// Stop 返回的 ctx 在正在执行的 sweep 结束后关闭
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	jobs, err := s.jobs.ListStalePendingJobs(ctx, now.Add(-s.staleAfter), now, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	requeued := 0
	for _, job := range jobs {
		if err := s.queue.EnqueueReconcile(ctx, job.ID, 0); err != nil {
			s.log.Warn("requeue stale job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.jobs.Touch(ctx, job.ID); err != nil {
			s.log.Warn("touch job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		requeued++
	}
	if requeued > 0 {
		s.log.Info("stale jobs requeued", zap.Int("count", requeued))
	}
	return requeued, nil
}
