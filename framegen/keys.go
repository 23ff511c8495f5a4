package framegen

import (
	"hash/fnv"
	"strconv"
	"strings"

	"CreativeStudio-server/models"
)

// BuildGroupKey 同一 storyboard + provider 在不强制重跑时得到相同的 key；
// force 或 nonce 会改变 key，从而绕过供应商侧去重。
func BuildGroupKey(storyboardID, providerID string, force bool, nonce string) string {
	parts := []string{"sb", storyboardID, "p", providerID}
	if force {
		parts = append(parts, "force")
	}
	if nonce = strings.TrimSpace(nonce); nonce != "" {
		parts = append(parts, "n", nonce)
	}
	return strings.Join(parts, ":")
}

// BuildFrameKey 分镜身份优先用 sceneID，缺省时回退到 sceneNumber，
// 与 SceneRef 的解析顺序保持一致。
func BuildFrameKey(groupKey string, frameIndex int, sceneID *string, sceneNumber int, frameType models.FrameType) string {
	ref := NewSceneRef(sceneID, sceneNumber)
	return strings.Join([]string{
		groupKey,
		ref.Key(),
		string(frameType),
		"i" + strconv.Itoa(frameIndex),
	}, ":")
}

// StableGroupID FNV-1a 64 位哈希的 base36 表示，仅用于追踪展示
func StableGroupID(groupKey string) string {
	h := fnv.New64a()
	h.Write([]byte(groupKey))
	return strconv.FormatUint(h.Sum64(), 36)
}
