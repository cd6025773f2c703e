package backtest

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/filter"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/trainer"
)

// LimitUpBodyRatio 收盘/开盘超过该值视为实体涨停
const LimitUpBodyRatio = 1.095

// Audit 列出验证区间每个调仓日概率最高的 TopK 只股票（不做剔除），标注可能买不进的情况
func (b *Backtester) Audit() ([]model.AuditRecord, error) {
	rows, err := dataset.Read(b.cfg.DatasetPath())
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}
	if err := b.ensureScorer(); err != nil {
		return nil, err
	}
	_, valid := trainer.Split(rows, b.cfg.TrainRatio)
	scored, err := Score(b.scorer, valid)
	if err != nil {
		return nil, err
	}
	book := NewBook(scored)
	names := b.names()
	rules := filter.Rules{LimitPct: b.cfg.LimitPct}
	opens := newOpenLookup(b.cfg.BarPath)

	var records []model.AuditRecord
	for _, date := range RebalanceDates(book.Dates, b.cfg.RebalanceEvery) {
		day := book.ByDate[date]
		for i := 0; i < len(day) && i < b.cfg.TopK; i++ {
			r := day[i]
			rec := model.AuditRecord{
				Date:          date,
				Code:          r.Code,
				Name:          names[r.Code],
				Probability:   r.Probability,
				ForwardReturn: r.ForwardReturn,
				Close:         r.Close,
				PctChg:        r.PctChg,
			}
			if reason, ok := rules.Check(filter.Candidate{Name: rec.Name, PctChg: r.PctChg}); !ok {
				rec.Flags = append(rec.Flags, reason)
			}
			if bar, ok := opens.get(r.Code, date); ok {
				rec.Open = bar.Open
				if bar.Open > 0 && bar.Close/bar.Open > LimitUpBodyRatio {
					rec.LimitUpBody = true
					rec.Flags = append(rec.Flags, "大阳线涨停")
				}
			} else {
				rec.Flags = append(rec.Flags, "数据缺失")
			}
			records = append(records, rec)
		}
	}
	flagged := 0
	for _, r := range records {
		if len(r.Flags) > 0 {
			flagged++
		}
	}
	log.Info().Int("trades", len(records)).Int("flagged", flagged).Msg("交易审计完成")
	return records, nil
}

// openLookup 按需读取原始K线，按代码缓存
type openLookup struct {
	path  func(code string) string
	cache map[string]map[string]model.Bar
}

func newOpenLookup(path func(code string) string) *openLookup {
	return &openLookup{path: path, cache: make(map[string]map[string]model.Bar)}
}

func (o *openLookup) get(code, date string) (model.Bar, bool) {
	byDate, ok := o.cache[code]
	if !ok {
		byDate = make(map[string]model.Bar)
		bars, err := barstore.ReadBars(o.path(code))
		if err != nil {
			log.Debug().Str("code", code).Err(err).Msg("读取原始K线失败")
		}
		for _, bar := range bars {
			byDate[bar.Date] = bar
		}
		o.cache[code] = byDate
	}
	bar, ok := byDate[date]
	return bar, ok
}
