package framegen

import (
	"fmt"
	"strings"

	"CreativeStudio-server/models"
)

// FrameObjectKey 同一逻辑帧同一版本总是得到相同的 key，重跑 reconcile 只会覆盖自己
func FrameObjectKey(projectID, storyboardID string, sceneNumber int, ft models.FrameType, version int, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "png"
	}
	if projectID == "" {
		projectID = "unassigned"
	}
	return fmt.Sprintf("projects/%s/storyboards/%s/scenes/%d/%s/v%d.%s",
		projectID, storyboardID, sceneNumber, ft, version, ext)
}
