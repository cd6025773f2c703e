package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateTaskRequest 提交任务
type CreateTaskRequest struct {
	Kind      string `json:"kind" binding:"required"`
	RequestID string `json:"request_id"`
}

// CreateTask 提交后台任务，同一 request_id 返回已有任务
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("X-Request-ID")
	}

	status, created, err := h.tasks.Create(req.Kind, req.RequestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kinds": h.tasks.Kinds()})
		return
	}
	code := http.StatusAccepted
	if !created {
		code = http.StatusOK
	}
	c.JSON(code, status)
}

func (h *Handler) GetTask(c *gin.Context) {
	status, ok := h.tasks.Get(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或已过期"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) CancelTask(c *gin.Context) {
	status, ok := h.tasks.Cancel(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或已过期"})
		return
	}
	c.JSON(http.StatusOK, status)
}
