package routers

import (
	"CreativeStudio-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/storyboards/:storyboard_id/frames", h.StartFrames)
		v1.GET("/jobs/:job_id", h.GetJob)
	}
	r.GET("/jobs/:job_id/wss", h.JobProgressWebSocket)
	return r
}
