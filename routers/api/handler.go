package api

import (
	"context"
	"time"

	"CreativeStudio-server/framegen"
	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"
	"CreativeStudio-server/service"

	"go.uber.org/zap"
)

type Store interface {
	GetStoryboard(ctx context.Context, id string) (*models.Storyboard, error)
	ListScenes(ctx context.Context, storyboardID string) ([]models.StoryboardScene, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

type FrameStarter interface {
	Start(ctx context.Context, req framegen.StartRequest) (*framegen.TaskGroup, error)
}

type Options struct {
	// MaxRuntime 写入 job payload，供 reconcile 使用
	MaxRuntime time.Duration
	// PushInterval WebSocket 轮询数据库的间隔
	PushInterval time.Duration
}

type Handler struct {
	store   Store
	starter FrameStarter
	queue   service.Enqueuer
	opts    Options
	log     *zap.Logger
}

func NewHandler(store Store, starter FrameStarter, queue service.Enqueuer, opts Options, log *zap.Logger) *Handler {
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	return &Handler{store: store, starter: starter, queue: queue, opts: opts, log: logger.OrNop(log)}
}
