// Package handler HTTP 接口：股票池、K线、特征、买入清单与异步任务
package handler

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/service"
)

var (
	codePattern = regexp.MustCompile(`^(sh|sz|bj)\.\d{6}$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Handler 持有配置与任务管理器
type Handler struct {
	cfg   *config.Config
	tasks *service.TaskManager
}

// New 创建 Handler
func New(cfg *config.Config, tasks *service.TaskManager) *Handler {
	return &Handler{cfg: cfg, tasks: tasks}
}

// Register 注册路由
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/auth/verify", VerifyAPIKey)

	api := r.Group("", AuthMiddleware())
	{
		api.GET("/stocks", h.GetStocks)
		api.GET("/stocks/:code/bars", h.GetBars)
		api.GET("/stocks/:code/features", h.GetFeatures)

		api.GET("/pool", h.GetPool)
		api.GET("/dataset", h.GetDatasetSummary)
		api.GET("/buylists", h.ListBuyLists)
		api.GET("/buylists/:date", h.GetBuyList)
		api.GET("/reports/curve", h.GetCurve)

		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks/:task_id", h.GetTask)
		api.POST("/tasks/:task_id/cancel", h.CancelTask)
	}
}

// respondError 缺少前置文件返回 404，其余 500
func respondError(c *gin.Context, err error) {
	if errors.Is(err, config.ErrMissingInput) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
