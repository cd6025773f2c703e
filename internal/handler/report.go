package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
)

// GetPool 当前股票池
func (h *Handler) GetPool(c *gin.Context) {
	if err := config.RequireFile(h.cfg.PoolPath()); err != nil {
		respondError(c, err)
		return
	}
	pool, err := barstore.ReadPool(h.cfg.PoolPath())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pool, "total": len(pool)})
}

// GetDatasetSummary 样本集统计与特征列
func (h *Handler) GetDatasetSummary(c *gin.Context) {
	stats, err := dataset.Summary(h.cfg.DatasetPath())
	if err != nil {
		respondError(c, err)
		return
	}
	names, err := dataset.FeatureNames(h.cfg.DatasetPath())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "features": names})
}

// ListBuyLists 历史买入清单日期，最新在前
func (h *Handler) ListBuyLists(c *gin.Context) {
	dates, err := barstore.ListBuyLists(h.cfg.BaseDir)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dates})
}

// GetBuyList 指定日期的买入清单，date=latest 取最新一份
func (h *Handler) GetBuyList(c *gin.Context) {
	date := c.Param("date")
	if date == "latest" {
		dates, err := barstore.ListBuyLists(h.cfg.BaseDir)
		if err != nil {
			respondError(c, err)
			return
		}
		if len(dates) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "还没有买入清单"})
			return
		}
		date = dates[0]
	}
	if !datePattern.MatchString(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "日期格式错误，应为 YYYY-MM-DD"})
		return
	}
	path := h.cfg.BuyListPath(date)
	if err := config.RequireFile(path); err != nil {
		respondError(c, err)
		return
	}
	items, err := barstore.ReadBuyList(path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "data": items})
}

// GetCurve 下载最近一次回测的资金曲线 CSV
func (h *Handler) GetCurve(c *gin.Context) {
	path := h.cfg.CurvePath()
	if err := config.RequireFile(path); err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, "backtest_curve.csv")
}
