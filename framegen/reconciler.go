package framegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const DefaultMaxRuntime = 120 * time.Second

type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
}

type SceneStore interface {
	GetStoryboard(ctx context.Context, id string) (*models.Storyboard, error)
	ListScenes(ctx context.Context, storyboardID string) ([]models.StoryboardScene, error)
	// CommitFrames 在一个事务里写入全部分镜更新和 job
	CommitFrames(ctx context.Context, job *models.Job, storyboardID string, updates []models.SceneUpdate) error
}

type Store interface {
	JobStore
	SceneStore
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type ReconcilerOptions struct {
	MaxRuntime          time.Duration
	PersistenceRequired bool
}

// Outcome 一次 reconcile 的落点；Status 只会是 COMPLETED / FAILED / PENDING
type Outcome struct {
	JobID         string
	Status        string
	Progress      string
	ScenesUpdated int
	Images        []models.FrameImage
	Failure       *AggregateFailure
	Verdict       Verdict
}

type Reconciler struct {
	store   Store
	poller  *Poller
	objects ObjectStore
	fetcher ImageFetcher
	opts    ReconcilerOptions
	log     *zap.Logger
}

// objects 或 fetcher 为 nil 时不做持久化，直接使用供应商地址
func NewReconciler(store Store, poller *Poller, objects ObjectStore, fetcher ImageFetcher, opts ReconcilerOptions, log *zap.Logger) *Reconciler {
	if opts.MaxRuntime <= 0 {
		opts.MaxRuntime = DefaultMaxRuntime
	}
	return &Reconciler{
		store:   store,
		poller:  poller,
		objects: objects,
		fetcher: fetcher,
		opts:    opts,
		log:     logger.OrNop(log),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, jobID string) (*Outcome, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	log := r.log.With(zap.String("job_id", job.ID), zap.String("storyboard_id", job.Payload.StoryboardID))

	if len(job.Payload.Tasks) == 0 {
		serr := &StructuralError{JobID: job.ID, Reason: "payload carries no tasks"}
		job.Status = models.JobStatusFailed
		job.Error = serr.Error()
		job.NextAttemptAt = nil
		if err := r.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("save structurally failed job %s: %w", job.ID, err)
		}
		log.Error("job has no tasks")
		return &Outcome{JobID: job.ID, Status: job.Status}, serr
	}

	res, err := r.pollWithDeadline(ctx, job)
	if err != nil {
		return nil, err
	}
	job.Payload.Tasks = res.Tasks
	job.ResultSummary = summarize(res.Tasks)
	outcome := &Outcome{JobID: job.ID, Progress: job.ResultSummary.Progress}

	if res.Status == models.FrameStatusFailed {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "frame generation failed"
		}
		job.Status = models.JobStatusFailed
		job.Error = msg
		job.NextAttemptAt = nil
		if err := r.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("save failed job %s: %w", job.ID, err)
		}
		log.Warn("frame generation failed", zap.String("error", msg), zap.String("progress", outcome.Progress))
		outcome.Status = job.Status
		outcome.Failure = &AggregateFailure{JobID: job.ID, Message: msg}
		return outcome, nil
	}

	outcome.Verdict = CompletionVerdict(res.Status, res.Tasks)
	if outcome.Verdict.Complete() {
		return r.complete(ctx, job, res, outcome, log)
	}

	job.Status = models.JobStatusPending
	job.Error = ""
	job.NextAttemptAt = nil
	if err := r.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save pending job %s: %w", job.ID, err)
	}
	log.Debug("frames still in progress", zap.String("status", string(res.Status)), zap.String("progress", outcome.Progress), zap.Int("polled", res.Polled))
	outcome.Status = job.Status
	return outcome, nil
}

// pollWithDeadline 超时立即返回 ErrTimeout，不等待未完成的供应商请求
func (r *Reconciler) pollWithDeadline(ctx context.Context, job *models.Job) (*PollResult, error) {
	runtime := r.opts.MaxRuntime
	if job.Payload.MaxRuntimeSeconds > 0 {
		runtime = time.Duration(job.Payload.MaxRuntimeSeconds) * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, runtime)
	defer cancel()

	type pollReply struct {
		res *PollResult
		err error
	}
	done := make(chan pollReply, 1)
	go func() {
		res, err := r.poller.Poll(pctx, job.Payload.ProviderID, job.Payload.Tasks)
		done <- pollReply{res, err}
	}()

	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("job %s after %s: %w", job.ID, runtime, ErrTimeout)
	}
	select {
	case <-pctx.Done():
		return nil, timedOut()
	case reply := <-done:
		if pctx.Err() != nil {
			return nil, timedOut()
		}
		if reply.err != nil {
			return nil, fmt.Errorf("poll job %s: %w", job.ID, reply.err)
		}
		return reply.res, nil
	}
}

type frameSlot struct {
	sceneID string
	ft      models.FrameType
}

func (r *Reconciler) complete(ctx context.Context, job *models.Job, res *PollResult, outcome *Outcome, log *zap.Logger) (*Outcome, error) {
	storyboardID := job.Payload.StoryboardID
	projectID := job.Payload.ProjectID
	if projectID == "" {
		sb, err := r.store.GetStoryboard(ctx, storyboardID)
		if err != nil {
			return nil, fmt.Errorf("load storyboard %s: %w", storyboardID, err)
		}
		projectID = sb.ProjectID
	}
	scenes, err := r.store.ListScenes(ctx, storyboardID)
	if err != nil {
		return nil, fmt.Errorf("list scenes of %s: %w", storyboardID, err)
	}

	versions := make(map[frameSlot]int)
	updates := make(map[string]*models.SceneUpdate)
	sceneOf := make(map[string]*models.StoryboardScene)
	var order []string
	images := make([]models.FrameImage, 0, len(res.Tasks))

	for _, t := range res.Tasks {
		if t.URL == "" {
			continue
		}
		img := models.FrameImage{
			TaskID:      t.TaskID,
			FrameIndex:  t.FrameIndex,
			SceneID:     t.SceneID,
			SceneNumber: t.SceneNumber,
			FrameType:   t.FrameType,
			URL:         t.URL,
			SourceURL:   t.URL,
		}
		scene, ok := NewSceneRef(t.SceneID, t.SceneNumber).Resolve(scenes)
		if !ok {
			log.Warn("frame has no matching scene", zap.String("task_id", t.TaskID), zap.String("scene", NewSceneRef(t.SceneID, t.SceneNumber).Key()))
			images = append(images, img)
			continue
		}

		up, seen := updates[scene.ID]
		if !seen {
			up = &models.SceneUpdate{SceneID: scene.ID, Metadata: scene.Metadata}
			updates[scene.ID] = up
			sceneOf[scene.ID] = scene
			order = append(order, scene.ID)
		}
		slot := frameSlot{scene.ID, t.FrameType}
		version, ok := versions[slot]
		if !ok {
			version = scene.Metadata.FrameVersion(t.FrameType)
		}
		version++
		versions[slot] = version

		url, persisted, err := r.persist(ctx, projectID, storyboardID, scene.SceneNumber, t, version)
		if err != nil {
			return r.deferAfterError(ctx, job, outcome, err, log)
		}
		img.URL, img.Persisted = url, persisted
		images = append(images, img)

		// 同一分镜同一帧类型出现多次时后写入者生效
		switch t.FrameType {
		case models.FrameTypeFirst:
			up.FirstFrameImageURL = &img.URL
		case models.FrameTypeLast:
			up.LastFrameImageURL = &img.URL
		}
		up.Metadata = up.Metadata.WithFrame(t.FrameType, version, t.TaskID, job.ID)
	}

	batch := make([]models.SceneUpdate, 0, len(order))
	for _, id := range order {
		up := updates[id]
		if up.LastFrameImageURL == nil && up.FirstFrameImageURL != nil && sceneOf[id].LastFrameImageURL == "" {
			up.LastFrameImageURL = up.FirstFrameImageURL
		}
		up.Status = models.SceneStatusFramesReady
		batch = append(batch, *up)
	}

	job.Status = models.JobStatusCompleted
	job.Error = ""
	job.NextAttemptAt = nil
	job.ResultSummary.Images = images
	job.ResultSummary.ScenesUpdated = len(batch)
	if err := r.store.CommitFrames(ctx, job, storyboardID, batch); err != nil {
		return r.deferAfterError(ctx, job, outcome, fmt.Errorf("commit frames of job %s: %w", job.ID, err), log)
	}

	log.Info("frames committed", zap.Int("scenes", len(batch)), zap.Int("images", len(images)),
		zap.Bool("status_signal", outcome.Verdict.StatusSignal), zap.Bool("evidence_signal", outcome.Verdict.EvidenceSignal))
	outcome.Status = job.Status
	outcome.ScenesUpdated = len(batch)
	outcome.Images = images
	return outcome, nil
}

// deferAfterError 持久化或提交失败：保留最新任务快照，job 退回 PENDING 等待下一轮
func (r *Reconciler) deferAfterError(ctx context.Context, job *models.Job, outcome *Outcome, cause error, log *zap.Logger) (*Outcome, error) {
	job.Status = models.JobStatusPending
	job.Error = cause.Error()
	job.ResultSummary.Images = nil
	job.ResultSummary.ScenesUpdated = 0
	if err := r.store.SaveJob(ctx, job); err != nil {
		log.Error("save job after commit failure", zap.Error(err))
	}
	log.Error("frames not committed", zap.Error(cause))
	outcome.Status = job.Status
	return outcome, cause
}

// persist 先上传再记录；不要求持久化时失败回退为供应商地址
func (r *Reconciler) persist(ctx context.Context, projectID, storyboardID string, sceneNumber int, t models.FrameTask, version int) (string, bool, error) {
	if r.objects == nil || r.fetcher == nil {
		if r.opts.PersistenceRequired {
			return "", false, &PersistenceError{TaskID: t.TaskID, Err: errors.New("no object store configured")}
		}
		return t.URL, false, nil
	}

	key := FrameObjectKey(projectID, storyboardID, sceneNumber, t.FrameType, version, "")
	url, err := func() (string, error) {
		data, err := r.fetcher.Fetch(ctx, t.URL)
		if err != nil {
			return "", fmt.Errorf("download: %w", err)
		}
		mt := mimetype.Detect(data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return "", fmt.Errorf("unexpected content type %s", mt.String())
		}
		key = FrameObjectKey(projectID, storyboardID, sceneNumber, t.FrameType, version, mt.Extension())
		return r.objects.Put(ctx, key, data, mt.String())
	}()
	if err == nil && url == "" {
		err = errors.New("object store returned no url")
	}
	if err != nil {
		if r.opts.PersistenceRequired {
			return "", false, &PersistenceError{TaskID: t.TaskID, Key: key, Err: err}
		}
		r.log.Warn("frame not persisted, keeping provider url", zap.String("task_id", t.TaskID), zap.String("key", key), zap.Error(err))
		return t.URL, false, nil
	}
	return url, true, nil
}

func summarize(tasks []models.FrameTask) models.ResultSummary {
	s := models.ResultSummary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.EffectiveStatus() {
		case models.FrameStatusSucceeded:
			s.Succeeded++
		case models.FrameStatusFailed:
			s.Failed++
		}
	}
	s.Progress = fmt.Sprintf("%d/%d", s.Succeeded, s.Total)
	return s
}
