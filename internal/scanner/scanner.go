// Package scanner 实盘选股：用最新K线计算特征、剔除不可交易的股票、模型打分并输出当日买入清单。
package scanner

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/filter"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/trainer"
)

// Scorer 对一行特征打分
type Scorer interface {
	Score(values []float64) (float64, error)
}

// Result 扫描结果
type Result struct {
	Date       string              `json:"date"`
	Path       string              `json:"path"`
	Scanned    int                 `json:"scanned"`
	Candidates int                 `json:"candidates"`
	Stale      int                 `json:"stale"`
	Rejected   map[string]int      `json:"rejected"`
	Forced     bool                `json:"forced"`
	Items      []model.BuyListItem `json:"items"`
}

// Scanner 实盘扫描器
type Scanner struct {
	cfg    *config.Config
	scorer Scorer
	now    func() time.Time
}

// New 创建扫描器，scorer 为空时从模型目录加载
func New(cfg *config.Config, scorer Scorer) *Scanner {
	return &Scanner{cfg: cfg, scorer: scorer, now: time.Now}
}

// Run 扫描股票池并写出 buy_list_<日期>.csv
func (s *Scanner) Run() (*Result, error) {
	if s.scorer == nil {
		sc, err := trainer.LoadScorer(s.cfg)
		if err != nil {
			return nil, err
		}
		s.scorer = sc
	}
	pool, err := barstore.ReadPool(s.cfg.PoolPath())
	if err != nil {
		return nil, fmt.Errorf("读取股票池失败: %w", err)
	}
	names, err := barstore.ReadNames(s.cfg.NamesPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		log.Warn().Msg("无法获取股票名称，ST 过滤可能失效")
		names = map[string]string{}
	}

	today := s.now()
	result := &Result{Date: today.Format("2006-01-02"), Rejected: map[string]int{}}
	rules := filter.Rules{LimitPct: s.cfg.LimitPct, Live: true}

	log.Info().Int("stocks", len(pool)).Msg("开始实盘扫描")
	var candidates []model.BuyListItem
	for _, p := range pool {
		bars, err := barstore.ReadBars(s.cfg.BarPath(p.Code))
		if err != nil || len(bars) < s.cfg.MinScanBars {
			continue
		}
		result.Scanned++

		point, _ := features.Latest(bars)
		if stale(point.Date, today, s.cfg.FreshnessDays) {
			result.Stale++
			log.Debug().Str("code", p.Code).Str("date", point.Date).Msg("数据过期")
		}

		name := names[p.Code]
		if reason, ok := rules.Check(filter.Candidate{Name: name, PctChg: point.PctChg, Volume: point.Volume, Close: point.Close}); !ok {
			result.Rejected[reason]++
			continue
		}
		if !point.Valid {
			result.Rejected["特征缺失"]++
			continue
		}
		prob, err := s.scorer.Score(point.Values)
		if err != nil {
			return nil, fmt.Errorf("%s 打分失败: %w", p.Code, err)
		}
		candidates = append(candidates, model.BuyListItem{
			Code:        p.Code,
			Name:        name,
			Date:        point.Date,
			Close:       point.Close,
			PctChg:      point.PctChg,
			Probability: prob,
			BBWidth:     point.Values[features.ColBBWidth],
		})
	}
	result.Candidates = len(candidates)
	if result.Stale > 0 {
		log.Warn().Int("stale", result.Stale).Int("days", s.cfg.FreshnessDays).Msg("部分股票数据不是最新，请先更新数据")
	}
	if len(candidates) == 0 {
		log.Warn().Int("scanned", result.Scanned).Msg("未扫描到有效数据")
		return result, nil
	}

	result.Items, result.Forced = Select(candidates, s.cfg.ConfidenceFloor, s.cfg.TopK, s.cfg.ScanFallback)
	result.Path = s.cfg.BuyListPath(result.Date)
	if err := barstore.WriteBuyList(result.Path, result.Items); err != nil {
		return nil, fmt.Errorf("写入买入清单失败: %w", err)
	}
	for _, it := range result.Items {
		log.Info().Str("code", it.Code).Str("name", it.Name).Float64("prob", it.Probability).
			Bool("below_floor", it.BelowFloor).Msg("入选")
	}
	log.Info().Int("candidates", result.Candidates).Int("picked", len(result.Items)).
		Bool("forced", result.Forced).Str("path", result.Path).Msg("扫描完成")
	return result, nil
}

// Select 取概率高于 floor 的前 topK 个；没有达标者时按 policy 决定：
// force 输出概率最高的 topK 个并标记 BelowFloor，strict 输出空清单
func Select(candidates []model.BuyListItem, floor float64, topK int, policy string) ([]model.BuyListItem, bool) {
	sorted := make([]model.BuyListItem, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Probability > sorted[j].Probability })

	var picks []model.BuyListItem
	for _, c := range sorted {
		if c.Probability > floor {
			picks = append(picks, c)
		}
	}
	if len(picks) > 0 {
		if len(picks) > topK {
			picks = picks[:topK]
		}
		return picks, false
	}
	if policy == config.FallbackStrict {
		return []model.BuyListItem{}, false
	}
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	for i := range sorted {
		sorted[i].BelowFloor = true
	}
	return sorted, true
}

// stale 数据日期距今超过 days 个自然日
func stale(date string, now time.Time, days int) bool {
	d, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return true
	}
	y, m, dd := now.Date()
	today := time.Date(y, m, dd, 0, 0, 0, 0, now.Location())
	return int(today.Sub(d).Hours()/24) > days
}
