package holiday

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIURL = "http://timor.tech/api/holiday/info/%s"

// 北京时间（无夏令时），收盘后 15:30 当日日线才算落定
var (
	ChinaTZ     = time.FixedZone("CST", 8*3600)
	closeMinute = 15*60 + 30
)

// Calendar A股交易日历
// 优先级：周末判断 > 自定义配置 > API > 默认工作日
type Calendar struct {
	// APIURL 为空时不访问节假日API
	APIURL   string
	cacheTTL time.Duration
	client   *http.Client

	mu        sync.RWMutex
	cache     map[string]bool
	cacheTime map[string]time.Time
	custom    map[string]bool
}

// NewCalendar 创建交易日历，useAPI 为 false 时只依据周末与自定义节假日判断
func NewCalendar(useAPI bool) *Calendar {
	c := &Calendar{
		cacheTTL:  24 * time.Hour,
		client:    &http.Client{Timeout: 3 * time.Second},
		cache:     make(map[string]bool),
		cacheTime: make(map[string]time.Time),
		custom:    make(map[string]bool),
	}
	if useAPI {
		c.APIURL = defaultAPIURL
	}
	return c
}

// LoadCustomHolidays 从JSON文件加载自定义节假日配置
// 文件格式：{"holidays": ["2025-01-01", "2025-01-28", ...]}
func (c *Calendar) LoadCustomHolidays(filePath string) error {
	if filePath == "" {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 文件不存在不算错误
		}
		return fmt.Errorf("读取节假日配置文件失败: %w", err)
	}

	var config struct {
		Holidays []string `json:"holidays"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("解析节假日配置文件失败: %w", err)
	}

	c.AddHolidays(config.Holidays...)
	log.Info().Int("count", len(config.Holidays)).Msg("加载自定义节假日配置")
	return nil
}

// AddHolidays 追加自定义节假日（YYYY-MM-DD）
func (c *Calendar) AddHolidays(dates ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		c.custom[d] = true
		delete(c.cache, d)
	}
}

// IsTradingDay 判断是否为A股交易日
// 周六周日不交易（即使是调休补班日），法定节假日不交易
func (c *Calendar) IsTradingDay(date time.Time) bool {
	dateStr := date.Format("2006-01-02")

	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}

	c.mu.RLock()
	if c.custom[dateStr] {
		c.mu.RUnlock()
		return false
	}
	if result, ok := c.cache[dateStr]; ok {
		if t, ok := c.cacheTime[dateStr]; ok && time.Since(t) < c.cacheTTL {
			c.mu.RUnlock()
			return result
		}
	}
	c.mu.RUnlock()

	if c.APIURL != "" {
		if result, ok := c.checkFromAPI(dateStr); ok {
			c.updateCache(dateStr, result)
			return result
		}
	}

	// API失败，回退到默认逻辑：周一到周五是交易日
	c.updateCache(dateStr, true)
	return true
}

// LatestTradingDay 不晚于 now 的最近一个交易日
func (c *Calendar) LatestTradingDay(now time.Time) time.Time {
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30 && !c.IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LatestClosedTradingDay 不晚于 now 且已收盘的最近一个交易日。
// 交易日 15:30（北京时间）之前当天的K线仍在变化，返回上一个交易日。
func (c *Calendar) LatestClosedTradingDay(now time.Time) time.Time {
	local := now.In(ChinaTZ)
	d := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if local.Hour()*60+local.Minute() < closeMinute {
		d = d.AddDate(0, 0, -1)
	}
	return c.LatestTradingDay(d)
}

func (c *Calendar) updateCache(dateStr string, result bool) {
	c.mu.Lock()
	c.cache[dateStr] = result
	c.cacheTime[dateStr] = time.Now()
	c.mu.Unlock()
}

// checkFromAPI 从节假日API检查是否为交易日
func (c *Calendar) checkFromAPI(dateStr string) (bool, bool) {
	resp, err := c.client.Get(fmt.Sprintf(c.APIURL, dateStr))
	if err != nil {
		// API失败不打印日志，避免刷屏
		return false, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, false
	}

	var result struct {
		Code int `json:"code"`
		Type struct {
			Type int    `json:"type"` // 0工作日 1周末 2节假日 3调休
			Name string `json:"name"`
		} `json:"type"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, false
	}
	if result.Code != 0 {
		return false, false
	}

	// type: 0工作日 1周末 2节假日 3调休（上班）
	isTrading := result.Type.Type == 0 || result.Type.Type == 3
	return isTrading, true
}
