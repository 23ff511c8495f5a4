package provider

import (
	"strings"

	"CreativeStudio-server/models"
)

var vendorStatuses = map[string]models.FrameStatus{
	"QUEUE":     models.FrameStatusQueued,
	"QUEUED":    models.FrameStatusQueued,
	"QUEUING":   models.FrameStatusQueued,
	"PENDING":   models.FrameStatusQueued,
	"WAIT":      models.FrameStatusQueued,
	"WAITING":   models.FrameStatusQueued,
	"CREATED":   models.FrameStatusQueued,
	"SUBMITTED": models.FrameStatusQueued,

	"PROCESSING":  models.FrameStatusRunning,
	"RUNNING":     models.FrameStatusRunning,
	"IN_PROGRESS": models.FrameStatusRunning,
	"GENERATING":  models.FrameStatusRunning,
	"STARTED":     models.FrameStatusRunning,

	"SUCCESS":   models.FrameStatusSucceeded,
	"SUCCEED":   models.FrameStatusSucceeded,
	"SUCCEEDED": models.FrameStatusSucceeded,
	"DONE":      models.FrameStatusSucceeded,
	"COMPLETE":  models.FrameStatusSucceeded,
	"COMPLETED": models.FrameStatusSucceeded,
	"FINISHED":  models.FrameStatusSucceeded,

	"FAIL":      models.FrameStatusFailed,
	"FAILED":    models.FrameStatusFailed,
	"FAILURE":   models.FrameStatusFailed,
	"ERROR":     models.FrameStatusFailed,
	"CANCELED":  models.FrameStatusFailed,
	"CANCELLED": models.FrameStatusFailed,
	"EXPIRED":   models.FrameStatusFailed,
	"REJECTED":  models.FrameStatusFailed,
}

// NormalizeStatus 把供应商状态词映射到四态枚举；词为空或不认识时第二个返回值为 false
func NormalizeStatus(vendor string) (models.FrameStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(vendor))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if key == "" {
		return "", false
	}
	s, ok := vendorStatuses[key]
	return s, ok
}

// 部分供应商不给状态词，只给 successFlag
func statusFromFlag(flag int) models.FrameStatus {
	switch flag {
	case 0:
		return models.FrameStatusRunning
	case 1:
		return models.FrameStatusSucceeded
	default:
		return models.FrameStatusFailed
	}
}

// resolveStatus 结果优先于状态：有可用地址即成功，除非供应商明确报告失败
func resolveStatus(vendor string, flag *int, hasOutput bool) models.FrameStatus {
	status, known := NormalizeStatus(vendor)
	if !known && flag != nil {
		status, known = statusFromFlag(*flag), true
	}
	switch {
	case known && status == models.FrameStatusFailed:
		return models.FrameStatusFailed
	case hasOutput:
		return models.FrameStatusSucceeded
	case known:
		return status
	case strings.TrimSpace(vendor) != "":
		return models.FrameStatusRunning
	default:
		return models.FrameStatusQueued
	}
}

var successWords = map[string]bool{
	"success":   true,
	"succeeded": true,
	"ok":        true,
	"done":      true,
	"completed": true,
}

func isSuccessMessage(msg string) bool {
	return successWords[strings.ToLower(strings.TrimSpace(msg))]
}
