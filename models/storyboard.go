package models

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"time"
)

const (
	SceneStatusPending     = "pending"
	SceneStatusGenerating  = "frames_generating"
	SceneStatusFramesReady = "frames_ready"
	SceneStatusFailed      = "failed"
)

type Storyboard struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string    `gorm:"type:varchar(64);index" json:"projectId"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Storyboard) TableName() string {
	return "storyboard"
}

type StoryboardScene struct {
	ID                 string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StoryboardID       string        `gorm:"type:varchar(64);index" json:"storyboardId"`
	SceneNumber        int           `json:"sceneNumber"`
	FirstFramePrompt   string        `gorm:"type:text" json:"firstFramePrompt"`
	LastFramePrompt    string        `gorm:"type:text" json:"lastFramePrompt"`
	FirstFrameImageURL string        `json:"firstFrameImageUrl"`
	LastFrameImageURL  string        `json:"lastFrameImageUrl"`
	Status             string        `json:"status"`
	Metadata           SceneMetadata `gorm:"type:json" json:"metadata"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func (StoryboardScene) TableName() string {
	return "storyboard_scene"
}

// SceneMetadata 是不透明的 JSON 对象；这里只读写帧版本相关的键，其余键原样保留
type SceneMetadata map[string]json.RawMessage

func frameVersionKey(ft FrameType) string { return string(ft) + "FrameVersion" }
func frameTaskKey(ft FrameType) string    { return string(ft) + "FrameTaskId" }

// framesJobKey 最近一次写入帧图的 job
const framesJobKey = "framesJobId"

// FrameVersion 返回该帧类型已落盘的最大版本号，未落盘返回 0
func (m SceneMetadata) FrameVersion(ft FrameType) int {
	raw, ok := m[frameVersionKey(ft)]
	if !ok {
		return 0
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

// WithFrame 返回记录了新版本的副本，不修改原 map
func (m SceneMetadata) WithFrame(ft FrameType, version int, taskID, jobID string) SceneMetadata {
	out := make(SceneMetadata, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	out[frameVersionKey(ft)] = json.RawMessage(strconv.Itoa(version))
	if b, err := json.Marshal(taskID); err == nil {
		out[frameTaskKey(ft)] = b
	}
	if b, err := json.Marshal(jobID); err == nil {
		out[framesJobKey] = b
	}
	return out
}

func (m SceneMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(m))
}

func (m *SceneMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// SceneUpdate 一次 reconcile 对单个分镜的写入
type SceneUpdate struct {
	SceneID            string
	FirstFrameImageURL *string
	LastFrameImageURL  *string
	Status             string
	Metadata           SceneMetadata
}
