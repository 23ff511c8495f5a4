package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 任务状态（由外部队列驱动，本服务只负责 reconcile 后的落点）
const (
	JobStatusPending    = "PENDING"
	JobStatusRunning    = "RUNNING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
	JobStatusDeadLetter = "DEAD_LETTER"

	JobTypeStoryboardFrames = "generate_storyboard_frames"
)

type Job struct {
	ID            string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Type          string        `gorm:"type:varchar(64)" json:"type"`
	Status        string        `gorm:"type:varchar(32);index" json:"status"`
	Payload       JobPayload    `gorm:"type:json" json:"payload"`
	Error         string        `gorm:"type:text" json:"error"`
	ResultSummary ResultSummary `gorm:"type:json" json:"resultSummary"`
	Attempts      int           `json:"attempts"`
	NextAttemptAt *time.Time    `json:"nextAttemptAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"index" json:"updatedAt"`
}

func (Job) TableName() string {
	return "job"
}

// JobPayload.Tasks 是多轮轮询之间任务状态的唯一来源
type JobPayload struct {
	StoryboardID      string      `json:"storyboardId"`
	ProjectID         string      `json:"projectId,omitempty"`
	ProviderID        string      `json:"providerId"`
	GroupKey          string      `json:"groupKey,omitempty"`
	GroupID           string      `json:"groupId,omitempty"`
	Force             bool        `json:"force,omitempty"`
	Nonce             string      `json:"nonce,omitempty"`
	MaxRuntimeSeconds int         `json:"maxRuntimeSeconds,omitempty"`
	Tasks             []FrameTask `json:"tasks"`
}

type ResultSummary struct {
	Total         int          `json:"total"`
	Succeeded     int          `json:"succeeded"`
	Failed        int          `json:"failed"`
	Progress      string       `json:"progress"`
	ScenesUpdated int          `json:"scenesUpdated,omitempty"`
	Images        []FrameImage `json:"images,omitempty"`
}

// FrameImage 已落盘（或回退到供应商临时地址）的一帧结果
type FrameImage struct {
	TaskID      string    `json:"taskId"`
	FrameIndex  int       `json:"frameIndex"`
	SceneID     *string   `json:"sceneId,omitempty"`
	SceneNumber int       `json:"sceneNumber"`
	FrameType   FrameType `json:"frameType"`
	URL         string    `json:"url"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	Persisted   bool      `json:"persisted"`
}

func (p JobPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *JobPayload) Scan(value interface{}) error {
	return scanJSON(value, p)
}

func (r ResultSummary) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ResultSummary) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("failed to unmarshal JSON value of type %T", value)
	}
}
