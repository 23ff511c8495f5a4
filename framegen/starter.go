package framegen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"

	"go.uber.org/zap"
)

// FramePrompt 一个分镜一帧的生成请求。FrameIndex 为空时按排序后的位置推断，
// 位置已被显式下标占用时顺延到下一个空闲下标。
type FramePrompt struct {
	SceneID         *string
	SceneNumber     int
	FrameType       models.FrameType
	FrameIndex      *int
	Text            string
	ReferenceImages []string
	AspectRatio     string
	Resolution      string
	OutputFormat    string
}

type StartRequest struct {
	StoryboardID string
	ProviderID   string
	Prompts      []FramePrompt
	Force        bool
	Nonce        string
}

type TaskGroup struct {
	GroupKey     string
	GroupID      string
	StoryboardID string
	ProviderID   string
	Tasks        []models.FrameTask
}

type Starter struct {
	registry *provider.Registry
	log      *zap.Logger
}

func NewStarter(registry *provider.Registry, log *zap.Logger) *Starter {
	return &Starter{registry: registry, log: logger.OrNop(log)}
}

// Start 按确定顺序逐个创建外部任务；任何一个失败则整批失败
func (s *Starter) Start(ctx context.Context, req StartRequest) (*TaskGroup, error) {
	if strings.TrimSpace(req.StoryboardID) == "" {
		return nil, fmt.Errorf("%w: storyboard id is required", ErrInvalidStart)
	}
	if len(req.Prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompts", ErrInvalidStart)
	}
	explicit := make(map[int]bool)
	for i, p := range req.Prompts {
		if p.FrameIndex != nil {
			if *p.FrameIndex < 0 {
				return nil, fmt.Errorf("%w: prompt %d has negative frame index %d", ErrInvalidStart, i, *p.FrameIndex)
			}
			if explicit[*p.FrameIndex] {
				return nil, fmt.Errorf("%w: frame index %d used twice", ErrInvalidStart, *p.FrameIndex)
			}
			explicit[*p.FrameIndex] = true
		}
		if strings.TrimSpace(p.Text) == "" {
			return nil, fmt.Errorf("%w: prompt %d has empty text", ErrInvalidStart, i)
		}
		if _, ok := models.ParseFrameType(string(p.FrameType)); !ok {
			return nil, fmt.Errorf("%w: prompt %d has frame type %q", ErrInvalidStart, i, p.FrameType)
		}
	}

	providerID := req.ProviderID
	if providerID == "" {
		providerID = s.registry.DefaultID()
	}
	p, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	prompts := SortPrompts(req.Prompts)
	indexes := assignFrameIndexes(prompts, explicit)
	groupKey := BuildGroupKey(req.StoryboardID, providerID, req.Force, req.Nonce)
	group := &TaskGroup{
		GroupKey:     groupKey,
		GroupID:      StableGroupID(groupKey),
		StoryboardID: req.StoryboardID,
		ProviderID:   providerID,
		Tasks:        make([]models.FrameTask, 0, len(prompts)),
	}
	log := s.log.With(zap.String("storyboard_id", req.StoryboardID), zap.String("provider", providerID), zap.String("group_id", group.GroupID))

	for pos, fp := range prompts {
		frameIndex := indexes[pos]
		ft, _ := models.ParseFrameType(string(fp.FrameType))
		key := BuildFrameKey(groupKey, frameIndex, fp.SceneID, fp.SceneNumber, ft)

		res, err := p.CreateTask(ctx, provider.CreateInput{
			Prompts:         []string{fp.Text},
			ReferenceImages: fp.ReferenceImages,
			AspectRatio:     fp.AspectRatio,
			Resolution:      fp.Resolution,
			OutputFormat:    fp.OutputFormat,
			IdempotencyKey:  key,
		})
		if err != nil {
			log.Warn("create frame task failed", zap.Int("frame_index", frameIndex), zap.Int("created", len(group.Tasks)), zap.Error(err))
			return nil, &ProviderCreateError{FrameIndex: frameIndex, FrameKey: key, Err: err}
		}

		group.Tasks = append(group.Tasks, models.FrameTask{
			FrameIndex:     frameIndex,
			SceneID:        fp.SceneID,
			SceneNumber:    fp.SceneNumber,
			FrameType:      ft,
			TaskID:         res.TaskID,
			IdempotencyKey: key,
			Status:         models.FrameStatusQueued,
		})
	}

	log.Info("frame tasks created", zap.Int("tasks", len(group.Tasks)))
	return group, nil
}

// SortPrompts 返回按 (sceneNumber, first 先于 last, frameIndex) 排好序的副本
func SortPrompts(prompts []FramePrompt) []FramePrompt {
	out := make([]FramePrompt, len(prompts))
	copy(out, prompts)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SceneNumber != b.SceneNumber {
			return a.SceneNumber < b.SceneNumber
		}
		ra, _ := models.ParseFrameType(string(a.FrameType))
		rb, _ := models.ParseFrameType(string(b.FrameType))
		if ra.Rank() != rb.Rank() {
			return ra.Rank() < rb.Rank()
		}
		if ia, ib := indexOrZero(a.FrameIndex), indexOrZero(b.FrameIndex); ia != ib {
			return ia < ib
		}
		// 下标相同时显式下标在前
		return a.FrameIndex != nil && b.FrameIndex == nil
	})
	return out
}

// assignFrameIndexes 组内每一帧得到唯一下标，否则两帧会共用一个幂等键
func assignFrameIndexes(sorted []FramePrompt, taken map[int]bool) []int {
	used := make(map[int]bool, len(sorted))
	for idx := range taken {
		used[idx] = true
	}
	out := make([]int, len(sorted))
	for pos, fp := range sorted {
		if fp.FrameIndex != nil {
			out[pos] = *fp.FrameIndex
			continue
		}
		idx := pos
		for used[idx] {
			idx++
		}
		used[idx] = true
		out[pos] = idx
	}
	return out
}

func indexOrZero(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
