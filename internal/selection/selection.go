// Package selection 按价格、上市时长、交易活跃度与板块筛选股票，再按近20日平均成交额排名取前N。
package selection

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
)

// Selector 股票池筛选器
type Selector struct {
	cfg *config.Config
	now func() time.Time
}

// New 创建筛选器
func New(cfg *config.Config) *Selector {
	return &Selector{cfg: cfg, now: time.Now}
}

// Run 扫描本地日线文件，生成并覆盖股票池文件
func (s *Selector) Run() ([]model.PoolEntry, error) {
	codes, err := barstore.ListCodes(s.cfg.RawDir())
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: %s 下没有日线文件，请先下载数据", config.ErrMissingInput, s.cfg.RawDir())
	}
	names, err := barstore.ReadNames(s.cfg.NamesPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	log.Info().Int("files", len(codes)).
		Float64("min_price", s.cfg.MinPrice).Float64("max_price", s.cfg.MaxPrice).
		Int("target", s.cfg.PoolSize).Msg("开始筛选股票池")

	var candidates []model.PoolEntry
	for _, code := range codes {
		bars, err := barstore.ReadBars(s.cfg.BarPath(code))
		if err != nil {
			log.Debug().Str("code", code).Err(err).Msg("读取失败，跳过")
			continue
		}
		entry, ok := s.Evaluate(code, bars)
		if !ok {
			continue
		}
		entry.Name = names[code]
		if entry.Name == "" {
			entry.Name = code
		}
		candidates = append(candidates, entry)
	}

	pool := Rank(candidates, s.cfg.PoolSize)
	if err := barstore.WritePool(s.cfg.PoolPath(), pool); err != nil {
		return nil, fmt.Errorf("写入股票池失败: %w", err)
	}
	metrics.PoolSize.Set(float64(len(pool)))
	log.Info().Int("qualified", len(candidates)).Int("selected", len(pool)).Str("path", s.cfg.PoolPath()).Msg("筛选完成")
	return pool, nil
}

// Evaluate 对单只股票应用硬性门槛，通过时返回带流动性的条目
func (s *Selector) Evaluate(code string, bars []model.Bar) (model.PoolEntry, bool) {
	if len(bars) < s.cfg.MinHistory || len(bars) == 0 {
		return model.PoolEntry{}, false
	}
	if stockdata.HasAnyPrefix(code, s.cfg.ExcludedPrefixes) {
		return model.PoolEntry{}, false
	}
	last := bars[len(bars)-1]
	lastDate, err := time.ParseInLocation("2006-01-02", last.Date, time.Local)
	if err != nil {
		return model.PoolEntry{}, false
	}
	if int(s.now().Sub(lastDate).Hours()/24) > s.cfg.ActiveDays {
		return model.PoolEntry{}, false
	}
	if last.Close > s.cfg.MaxPrice || last.Close < s.cfg.MinPrice {
		return model.PoolEntry{}, false
	}
	avg := AvgAmount(bars, s.cfg.LiquidityWindow)
	if math.IsNaN(avg) {
		return model.PoolEntry{}, false
	}
	return model.PoolEntry{Code: code, Close: last.Close, AvgAmount: avg}, true
}

// AvgAmount 最近 window 根K线的平均成交额
func AvgAmount(bars []model.Bar, window int) float64 {
	if len(bars) == 0 || window <= 0 {
		return math.NaN()
	}
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, b := range bars[start:] {
		sum += b.Amount
	}
	return sum / float64(len(bars)-start)
}

// Rank 按平均成交额降序稳定排序，取前 n 个
func Rank(candidates []model.PoolEntry, n int) []model.PoolEntry {
	ranked := make([]model.PoolEntry, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].AvgAmount > ranked[j].AvgAmount })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
