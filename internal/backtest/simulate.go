// Package backtest 在验证区间或随机历史窗口上按周调仓，回放模型选股的收益。
package backtest

import (
	"sort"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/filter"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/service"
)

// Scored 已打分的样本
type Scored struct {
	model.FeatureRow
	Probability float64
}

// Book 按交易日分组的已打分样本
type Book struct {
	Dates  []string
	ByDate map[string][]Scored
}

// NewBook 分组并对每日样本按概率降序排列，同分按代码升序
func NewBook(rows []Scored) *Book {
	b := &Book{ByDate: make(map[string][]Scored)}
	for _, r := range rows {
		if _, ok := b.ByDate[r.Date]; !ok {
			b.Dates = append(b.Dates, r.Date)
		}
		b.ByDate[r.Date] = append(b.ByDate[r.Date], r)
	}
	sort.Strings(b.Dates)
	for _, day := range b.ByDate {
		sort.SliceStable(day, func(i, j int) bool {
			if day[i].Probability != day[j].Probability {
				return day[i].Probability > day[j].Probability
			}
			return day[i].Code < day[j].Code
		})
	}
	return b
}

// RebalanceDates 每 every 个交易日取一个调仓日，从第一个交易日开始
func RebalanceDates(dates []string, every int) []string {
	if every <= 0 {
		every = 1
	}
	var out []string
	for i := 0; i < len(dates); i += every {
		out = append(out, dates[i])
	}
	return out
}

// EqualWeightBenchmark 当日全部样本未来收益的等权平均
func EqualWeightBenchmark(day []Scored) float64 {
	if len(day) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range day {
		sum += r.ForwardReturn
	}
	return sum / float64(len(day))
}

// simulator 单个窗口的调仓回放
type simulator struct {
	rules filter.Rules
	topK  int
	names map[string]string
	fees  config.FeeConfig
}

func newSimulator(cfg *config.Config, names map[string]string) simulator {
	return simulator{
		rules: filter.Rules{LimitPct: cfg.LimitPct},
		topK:  cfg.TopK,
		names: names,
		fees:  cfg.Fees,
	}
}

// pick 按概率从高到低取前 topK 只通过剔除规则的股票
func (s simulator) pick(day []Scored) (picks []Scored, rejected int) {
	for _, r := range day {
		if len(picks) >= s.topK {
			break
		}
		if _, ok := s.rules.Check(filter.Candidate{Name: s.names[r.Code], PctChg: r.PctChg}); !ok {
			rejected++
			continue
		}
		picks = append(picks, r)
	}
	return picks, rejected
}

// run 第一个调仓日作为起点（资金 1.0），之后每个调仓日结算一期
func (s simulator) run(book *Book, dates []string) *model.BacktestReport {
	report := &model.BacktestReport{StrategyCapital: 1, BenchmarkCapital: 1}
	if len(dates) == 0 {
		return report
	}
	report.StartDate = dates[0]
	report.EndDate = dates[len(dates)-1]
	report.Curve = append(report.Curve, model.CurvePoint{Date: dates[0], StrategyCapital: 1, BenchmarkCapital: 1})

	for _, date := range dates[1:] {
		day := book.ByDate[date]
		if len(day) == 0 {
			continue
		}
		picks, rejected := s.pick(day)
		report.Rejected += rejected

		point := model.CurvePoint{Date: date, CandidateCount: len(day), RejectedCount: rejected}
		if len(picks) > 0 {
			sum, drag := 0.0, 0.0
			for _, p := range picks {
				ret := p.ForwardReturn
				if s.fees.Enabled {
					d := service.FeeDrag(p.Code, s.fees.Notional/float64(len(picks)), ret)
					drag += d
					ret -= d
				}
				sum += ret
				point.Picks = append(point.Picks, model.Pick{
					Code:          p.Code,
					Name:          s.names[p.Code],
					Probability:   p.Probability,
					ForwardReturn: p.ForwardReturn,
					PctChg:        p.PctChg,
				})
			}
			point.StrategyReturn = sum / float64(len(picks))
			point.FeeDrag = drag / float64(len(picks))
		} else {
			report.EmptyPeriods++
		}
		point.BenchmarkReturn = EqualWeightBenchmark(day)

		report.StrategyCapital *= 1 + point.StrategyReturn
		report.BenchmarkCapital *= 1 + point.BenchmarkReturn
		point.StrategyCapital = report.StrategyCapital
		point.BenchmarkCapital = report.BenchmarkCapital
		report.Curve = append(report.Curve, point)
		report.Periods++
	}

	report.StrategyReturn = (report.StrategyCapital - 1) * 100
	report.BenchmarkReturn = (report.BenchmarkCapital - 1) * 100
	report.Alpha = report.StrategyReturn - report.BenchmarkReturn
	return report
}
