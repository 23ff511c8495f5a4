package framegen

import (
	"strings"

	"CreativeStudio-server/models"
)

// Verdict 两个独立信号任一成立即视为完成：
// 状态信号看聚合状态，证据信号看每个任务是否都拿到了结果地址。
type Verdict struct {
	StatusSignal   bool
	EvidenceSignal bool
}

func (v Verdict) Complete() bool {
	return v.StatusSignal || v.EvidenceSignal
}

func CompletionVerdict(status models.FrameStatus, tasks []models.FrameTask) Verdict {
	return Verdict{
		StatusSignal:   statusSignal(status),
		EvidenceSignal: evidenceSignal(tasks),
	}
}

func statusSignal(status models.FrameStatus) bool {
	s := strings.ToUpper(strings.TrimSpace(string(status)))
	return s == string(models.FrameStatusSucceeded) || s == "SUCCESS"
}

func evidenceSignal(tasks []models.FrameTask) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.URL == "" || t.Error != "" || t.Status == models.FrameStatusFailed {
			return false
		}
	}
	return true
}
