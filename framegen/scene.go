package framegen

import (
	"strconv"
	"strings"

	"CreativeStudio-server/models"
)

// SceneRef 分镜的双重身份：先按 id 解析，再按序号回退
type SceneRef struct {
	ID     string
	Number int
}

func NewSceneRef(sceneID *string, sceneNumber int) SceneRef {
	ref := SceneRef{Number: sceneNumber}
	if sceneID != nil {
		ref.ID = strings.TrimSpace(*sceneID)
	}
	return ref
}

func (r SceneRef) Key() string {
	if r.ID != "" {
		return "scene:" + r.ID
	}
	return "scene#" + strconv.Itoa(r.Number)
}

// Resolve 在同一 storyboard 的分镜列表里查找；id 命中时忽略序号
func (r SceneRef) Resolve(scenes []models.StoryboardScene) (*models.StoryboardScene, bool) {
	if r.ID != "" {
		for i := range scenes {
			if scenes[i].ID == r.ID {
				return &scenes[i], true
			}
		}
	}
	for i := range scenes {
		if scenes[i].SceneNumber == r.Number {
			return &scenes[i], true
		}
	}
	return nil, false
}
