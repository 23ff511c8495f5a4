package api

import (
	"net/http"
	"time"

	"CreativeStudio-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func settled(status string) bool {
	switch status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusDeadLetter:
		return true
	}
	return false
}

// 任务进度 WebSocket 推送：以数据库为准，状态或进度变化时推送，进入终态后关闭
func (h *Handler) JobProgressWebSocket(c *gin.Context) {
	jobID := c.Param("job_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": "job not found: " + err.Error()})
		return
	}
	if err := conn.WriteJSON(job); err != nil || settled(job.Status) {
		return
	}

	ticker := time.NewTicker(h.opts.PushInterval)
	defer ticker.Stop()
	prevStatus, prevProgress := job.Status, job.ResultSummary.Progress
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.store.GetJob(ctx, jobID)
		if err != nil {
			continue
		}
		if cur.Status == prevStatus && cur.ResultSummary.Progress == prevProgress {
			continue
		}
		if err := conn.WriteJSON(cur); err != nil {
			return
		}
		prevStatus, prevProgress = cur.Status, cur.ResultSummary.Progress
		if settled(cur.Status) {
			return
		}
	}
}
