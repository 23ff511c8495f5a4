package framegen

import (
	"context"
	"sync"
	"sync/atomic"

	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"

	"go.uber.org/zap"
)

const DefaultPollConcurrency = 4

type PollResult struct {
	Status       models.FrameStatus
	Tasks        []models.FrameTask
	Images       []models.FrameImage
	ErrorMessage string
	Polled       int
}

type Poller struct {
	registry    *provider.Registry
	concurrency int
	log         *zap.Logger
}

func NewPoller(registry *provider.Registry, concurrency int, log *zap.Logger) *Poller {
	if concurrency <= 0 {
		concurrency = DefaultPollConcurrency
	}
	return &Poller{registry: registry, concurrency: concurrency, log: logger.OrNop(log)}
}

// Poll 用固定数量的 worker 共享一个原子游标轮询所有未完成任务。
// 结果按原下标写回，顺序与输入一致；单个任务出错只把该任务标记为 FAILED。
// ctx 结束时停止领取新任务，已领取但未拿到结果的任务保持原状态，并返回 ctx.Err()。
func (p *Poller) Poll(ctx context.Context, providerID string, tasks []models.FrameTask) (*PollResult, error) {
	prov, err := p.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	out := make([]models.FrameTask, len(tasks))
	copy(out, tasks)

	var (
		cursor atomic.Int64
		polled atomic.Int64
		wg     sync.WaitGroup
	)
	workers := p.concurrency
	if workers > len(out) {
		workers = len(out)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(cursor.Add(1) - 1)
				if i >= len(out) {
					return
				}
				if out[i].Resolved() {
					continue
				}
				if p.pollOne(ctx, prov, &out[i]) {
					polled.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &PollResult{
		Status: AggregateStatus(out),
		Tasks:  out,
		Polled: int(polled.Load()),
	}
	for _, t := range out {
		if t.EffectiveStatus() == models.FrameStatusFailed && res.ErrorMessage == "" {
			res.ErrorMessage = t.Error
		}
		if t.Resolved() {
			res.Images = append(res.Images, models.FrameImage{
				TaskID:      t.TaskID,
				FrameIndex:  t.FrameIndex,
				SceneID:     t.SceneID,
				SceneNumber: t.SceneNumber,
				FrameType:   t.FrameType,
				URL:         t.URL,
				SourceURL:   t.URL,
			})
		}
	}
	return res, nil
}

// pollOne 更新单个任务；返回是否真正调用了供应商
func (p *Poller) pollOne(ctx context.Context, prov provider.Provider, t *models.FrameTask) bool {
	if t.TaskID == "" {
		t.Status = models.FrameStatusFailed
		t.Error = provider.ErrMissingTaskID.Error()
		return false
	}
	res, err := prov.GetTask(ctx, t.TaskID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		pe := &ProviderPollError{TaskID: t.TaskID, Err: err}
		p.log.Warn("poll frame task failed", zap.String("task_id", t.TaskID), zap.Error(err))
		t.Status = models.FrameStatusFailed
		t.Error = pe.Error()
		return true
	}

	// 未完成的任务以最新一次结果为准
	t.Status = res.Status
	switch res.Status {
	case models.FrameStatusFailed:
		t.Error = res.ErrorMessage
		if t.Error == "" {
			t.Error = "provider reported failure"
		}
	case models.FrameStatusSucceeded:
		if len(res.Images) > 0 {
			t.URL = res.Images[0]
		}
	}
	return true
}

// AggregateStatus 严格优先级：任一 FAILED > 全部 SUCCEEDED > 任一 RUNNING > QUEUED。
// 空列表返回 QUEUED，不会被当作完成。
func AggregateStatus(tasks []models.FrameTask) models.FrameStatus {
	if len(tasks) == 0 {
		return models.FrameStatusQueued
	}
	succeeded, running := 0, false
	for _, t := range tasks {
		switch t.EffectiveStatus() {
		case models.FrameStatusFailed:
			return models.FrameStatusFailed
		case models.FrameStatusSucceeded:
			succeeded++
		case models.FrameStatusRunning:
			running = true
		}
	}
	switch {
	case succeeded == len(tasks):
		return models.FrameStatusSucceeded
	case running:
		return models.FrameStatusRunning
	default:
		return models.FrameStatusQueued
	}
}
