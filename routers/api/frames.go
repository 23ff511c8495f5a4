package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"CreativeStudio-server/framegen"
	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type startFramesRequest struct {
	ProviderID      string   `json:"providerId"`
	Force           bool     `json:"force"`
	Nonce           string   `json:"nonce"`
	SceneNumbers    []int    `json:"sceneNumbers"`
	FrameTypes      []string `json:"frameTypes"`
	ReferenceImages []string `json:"referenceImages"`
	AspectRatio     string   `json:"aspectRatio"`
	Resolution      string   `json:"resolution"`
	OutputFormat    string   `json:"outputFormat"`
}

// 生成分镜首尾帧：POST /v1/api/storyboards/:storyboard_id/frames
func (h *Handler) StartFrames(c *gin.Context) {
	storyboardID := c.Param("storyboard_id")
	var req startFramesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	frameTypes, err := parseFrameTypes(req.FrameTypes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sb, err := h.store.GetStoryboard(ctx, storyboardID)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "storyboard not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取 storyboard 失败: " + err.Error()})
		return
	}
	scenes, err := h.store.ListScenes(ctx, storyboardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分镜失败: " + err.Error()})
		return
	}

	prompts := buildPrompts(scenes, req, frameTypes)
	if len(prompts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no scene has a prompt for the requested frames"})
		return
	}

	group, err := h.starter.Start(ctx, framegen.StartRequest{
		StoryboardID: storyboardID,
		ProviderID:   req.ProviderID,
		Prompts:      prompts,
		Force:        req.Force,
		Nonce:        req.Nonce,
	})
	if err != nil {
		c.JSON(startErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	job := &models.Job{
		ID:     uuid.NewString(),
		Type:   models.JobTypeStoryboardFrames,
		Status: models.JobStatusPending,
		Payload: models.JobPayload{
			StoryboardID:      storyboardID,
			ProjectID:         sb.ProjectID,
			ProviderID:        group.ProviderID,
			GroupKey:          group.GroupKey,
			GroupID:           group.GroupID,
			Force:             req.Force,
			Nonce:             req.Nonce,
			MaxRuntimeSeconds: int(h.opts.MaxRuntime.Seconds()),
			Tasks:             group.Tasks,
		},
		ResultSummary: models.ResultSummary{
			Total:    len(group.Tasks),
			Progress: fmt.Sprintf("0/%d", len(group.Tasks)),
		},
	}
	if err := h.store.CreateJob(ctx, job); err != nil {
		h.log.Error("create job failed", zap.String("group_id", group.GroupID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建任务失败: " + err.Error()})
		return
	}
	// 入队失败时由 sweeper 兜底
	if err := h.queue.EnqueueReconcile(ctx, job.ID, 0); err != nil {
		h.log.Warn("enqueue reconcile failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.ID,
		"group_id": group.GroupID,
		"tasks":    len(group.Tasks),
	})
}

// 查询任务：GET /v1/api/jobs/:job_id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("job_id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func parseFrameTypes(in []string) ([]models.FrameType, error) {
	if len(in) == 0 {
		return []models.FrameType{models.FrameTypeFirst, models.FrameTypeLast}, nil
	}
	out := make([]models.FrameType, 0, len(in))
	for _, s := range in {
		ft, ok := models.ParseFrameType(s)
		if !ok {
			return nil, fmt.Errorf("unknown frame type %q", s)
		}
		out = append(out, ft)
	}
	return out, nil
}

// buildPrompts 每个分镜的首帧/尾帧 prompt 各对应一个任务，空 prompt 跳过。
// 尾帧把已有的首帧图作为参考图，保持画面连续。
func buildPrompts(scenes []models.StoryboardScene, req startFramesRequest, frameTypes []models.FrameType) []framegen.FramePrompt {
	wanted := make(map[int]bool, len(req.SceneNumbers))
	for _, n := range req.SceneNumbers {
		wanted[n] = true
	}
	var prompts []framegen.FramePrompt
	for i := range scenes {
		sc := scenes[i]
		if len(wanted) > 0 && !wanted[sc.SceneNumber] {
			continue
		}
		for _, ft := range frameTypes {
			text := sc.FirstFramePrompt
			refs := append([]string(nil), req.ReferenceImages...)
			if ft == models.FrameTypeLast {
				text = sc.LastFramePrompt
				if sc.FirstFrameImageURL != "" {
					refs = append(refs, sc.FirstFrameImageURL)
				}
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			sceneID := sc.ID
			prompts = append(prompts, framegen.FramePrompt{
				SceneID:         &sceneID,
				SceneNumber:     sc.SceneNumber,
				FrameType:       ft,
				Text:            text,
				ReferenceImages: refs,
				AspectRatio:     req.AspectRatio,
				Resolution:      req.Resolution,
				OutputFormat:    req.OutputFormat,
			})
		}
	}
	return prompts
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, framegen.ErrInvalidStart), errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, provider.ErrPromptCount), errors.Is(err, provider.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrLiveModeDisabled):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}
