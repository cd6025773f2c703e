package handler

import (
	"math"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
)

// GetStocks 按代码或名称搜索股票
func (h *Handler) GetStocks(c *gin.Context) {
	if err := config.RequireFile(h.cfg.NamesPath()); err != nil {
		respondError(c, err)
		return
	}
	names, err := barstore.ReadNames(h.cfg.NamesPath())
	if err != nil {
		respondError(c, err)
		return
	}
	stocks := make([]model.Stock, 0, len(names))
	for code, name := range names {
		stocks = append(stocks, model.Stock{Code: code, Name: name})
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Code < stocks[j].Code })

	c.JSON(http.StatusOK, gin.H{
		"data": stockdata.SearchStocks(stocks, c.Query("keyword")),
	})
}

func (h *Handler) readBars(c *gin.Context) (string, []model.Bar, bool) {
	code := c.Param("code")
	if !codePattern.MatchString(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "股票代码格式错误"})
		return code, nil, false
	}
	path := h.cfg.BarPath(code)
	if err := config.RequireFile(path); err != nil {
		respondError(c, err)
		return code, nil, false
	}
	bars, err := barstore.ReadBars(path)
	if err != nil {
		respondError(c, err)
		return code, nil, false
	}
	return code, bars, true
}

// GetBars 获取日线，limit 限制返回最近的条数
func (h *Handler) GetBars(c *gin.Context) {
	code, bars, ok := h.readBars(c)
	if !ok {
		return
	}
	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误"})
		return
	}
	if q.Limit > 0 && q.Limit < len(bars) {
		bars = bars[len(bars)-q.Limit:]
	}
	names, _ := barstore.ReadNames(h.cfg.NamesPath())
	c.JSON(http.StatusOK, model.BarsResponse{Code: code, Name: names[code], Data: bars})
}

// GetFeatures 获取最新一根K线的特征
func (h *Handler) GetFeatures(c *gin.Context) {
	code, bars, ok := h.readBars(c)
	if !ok {
		return
	}
	p, ok := features.Latest(bars)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有K线数据"})
		return
	}
	// 预热期内的 NaN 以 null 返回
	values := make(map[string]any, len(features.Names))
	for name, v := range p.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[name] = nil
			continue
		}
		values[name] = v
	}
	c.JSON(http.StatusOK, gin.H{
		"code":     code,
		"date":     p.Date,
		"close":    p.Close,
		"pct_chg":  p.PctChg,
		"valid":    p.Valid,
		"features": values,
	})
}
