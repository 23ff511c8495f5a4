package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrSceneMissing = errors.New("scene does not belong to storyboard")
)

// Repository 基于 GORM 的任务与分镜读写
type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) CreateJob(ctx context.Context, job *Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	return r.DB.WithContext(ctx).Create(job).Error
}

func (r *Repository) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := r.DB.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// SaveJob 写回可变字段；NextAttemptAt 为 nil 时清空该列
func (r *Repository) SaveJob(ctx context.Context, job *Job) error {
	return saveJob(r.DB.WithContext(ctx), job)
}

func saveJob(tx *gorm.DB, job *Job) error {
	job.UpdatedAt = time.Now()
	res := tx.Model(&Job{ID: job.ID}).
		Select("status", "payload", "error", "result_summary", "attempts", "next_attempt_at", "updated_at").
		Updates(job)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetStoryboard(ctx context.Context, id string) (*Storyboard, error) {
	var sb Storyboard
	if err := r.DB.WithContext(ctx).First(&sb, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sb, nil
}

func (r *Repository) ListScenes(ctx context.Context, storyboardID string) ([]StoryboardScene, error) {
	var scenes []StoryboardScene
	err := r.DB.WithContext(ctx).
		Where("storyboard_id = ?", storyboardID).
		Order("scene_number ASC").
		Find(&scenes).Error
	return scenes, err
}

// CommitFrames 在一个事务中写入全部分镜更新并保存任务，任一失败则整体回滚
func (r *Repository) CommitFrames(ctx context.Context, job *Job, storyboardID string, updates []SceneUpdate) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			ids := make([]string, 0, len(updates))
			seen := make(map[string]bool, len(updates))
			for _, u := range updates {
				if !seen[u.SceneID] {
					seen[u.SceneID] = true
					ids = append(ids, u.SceneID)
				}
			}
			var n int64
			if err := tx.Model(&StoryboardScene{}).
				Where("storyboard_id = ? AND id IN ?", storyboardID, ids).
				Count(&n).Error; err != nil {
				return err
			}
			if int(n) != len(ids) {
				return fmt.Errorf("%w: expected %d scenes, found %d", ErrSceneMissing, len(ids), n)
			}
		}

		now := time.Now()
		for _, u := range updates {
			fields := map[string]interface{}{
				"updated_at": now,
			}
			if u.FirstFrameImageURL != nil {
				fields["first_frame_image_url"] = *u.FirstFrameImageURL
			}
			if u.LastFrameImageURL != nil {
				fields["last_frame_image_url"] = *u.LastFrameImageURL
			}
			if u.Status != "" {
				fields["status"] = u.Status
			}
			if u.Metadata != nil {
				fields["metadata"] = u.Metadata
			}
			if err := tx.Model(&StoryboardScene{}).
				Where("id = ? AND storyboard_id = ?", u.SceneID, storyboardID).
				Updates(fields).Error; err != nil {
				return fmt.Errorf("update scene %s: %w", u.SceneID, err)
			}
		}
		if job != nil {
			return saveJob(tx, job)
		}
		return nil
	})
}

// ListStalePendingJobs 查找长时间未被处理的 PENDING 任务，供 sweeper 重新入队
func (r *Repository) ListStalePendingJobs(ctx context.Context, untouchedSince, now time.Time, limit int) ([]Job, error) {
	var jobs []Job
	err := r.DB.WithContext(ctx).
		Where("status = ? AND updated_at < ?", JobStatusPending, untouchedSince).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Touch 只刷新 updated_at，避免 sweeper 重复入队
func (r *Repository) Touch(ctx context.Context, jobID string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Update("updated_at", time.Now()).Error
}
