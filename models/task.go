package models

import "strings"

// FrameStatus 是单帧外部任务的统一四态
type FrameStatus string

const (
	FrameStatusQueued    FrameStatus = "QUEUED"
	FrameStatusRunning   FrameStatus = "RUNNING"
	FrameStatusSucceeded FrameStatus = "SUCCEEDED"
	FrameStatusFailed    FrameStatus = "FAILED"
)

// FrameType 区分同一分镜的首帧与尾帧，两者是独立任务
type FrameType string

const (
	FrameTypeFirst FrameType = "first"
	FrameTypeLast  FrameType = "last"
)

func ParseFrameType(s string) (FrameType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first":
		return FrameTypeFirst, true
	case "last":
		return FrameTypeLast, true
	}
	return "", false
}

// Rank 用于排序：first 在 last 之前
func (f FrameType) Rank() int {
	if f == FrameTypeLast {
		return 1
	}
	return 0
}

// FrameTask 一个分镜的一帧对应的外部生成任务
type FrameTask struct {
	FrameIndex     int         `json:"frameIndex"`
	SceneID        *string     `json:"sceneId,omitempty"`
	SceneNumber    int         `json:"sceneNumber"`
	FrameType      FrameType   `json:"frameType"`
	TaskID         string      `json:"taskId"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	Status         FrameStatus `json:"status"`
	URL            string      `json:"url,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Resolved 已成功且拿到结果地址的任务不再轮询
func (t FrameTask) Resolved() bool {
	return t.Status == FrameStatusSucceeded && t.URL != ""
}

// EffectiveStatus 有错误信息即视为失败；SUCCEEDED 但没有 URL 仍视为进行中
func (t FrameTask) EffectiveStatus() FrameStatus {
	if t.Error != "" {
		return FrameStatusFailed
	}
	if t.Status == FrameStatusSucceeded && t.URL == "" {
		return FrameStatusRunning
	}
	if t.Status == "" {
		return FrameStatusQueued
	}
	return t.Status
}

func (t FrameTask) SceneIDValue() string {
	if t.SceneID == nil {
		return ""
	}
	return *t.SceneID
}
