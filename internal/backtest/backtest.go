package backtest

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/trainer"
)

// Scorer 批量打分，返回与输入行一一对应的概率
type Scorer interface {
	ScoreRows(rows []model.FeatureRow) ([]float64, error)
}

// Backtester 回测器
type Backtester struct {
	cfg    *config.Config
	scorer Scorer
}

// New 创建回测器，scorer 为空时从模型目录加载
func New(cfg *config.Config, scorer Scorer) *Backtester {
	return &Backtester{cfg: cfg, scorer: scorer}
}

func (b *Backtester) ensureScorer() error {
	if b.scorer != nil {
		return nil
	}
	s, err := trainer.LoadScorer(b.cfg)
	if err != nil {
		return err
	}
	b.scorer = s
	return nil
}

// Run 在验证区间上回测，写出资金曲线
func (b *Backtester) Run() (*model.BacktestReport, error) {
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
	names := b.names()

	book := NewBook(scored)
	dates := RebalanceDates(book.Dates, b.cfg.RebalanceEvery)
	log.Info().Int("rows", len(valid)).Int("weeks", len(dates)).
		Bool("fees", b.cfg.Fees.Enabled).Msg("开始回测验证区间")

	report := newSimulator(b.cfg, names).run(book, dates)

	if err := barstore.WriteCurve(b.cfg.CurvePath(), report.Curve); err != nil {
		log.Warn().Err(err).Str("path", b.cfg.CurvePath()).Msg("写入资金曲线失败")
	}
	metrics.BacktestAlpha.Set(report.Alpha)
	log.Info().Str("start", report.StartDate).Str("end", report.EndDate).
		Float64("strategy_capital", report.StrategyCapital).
		Float64("benchmark_capital", report.BenchmarkCapital).
		Float64("alpha", report.Alpha).Int("rejected", report.Rejected).
		Msg("回测完成")
	return report, nil
}

// Score 对样本打分并附上概率
func Score(scorer Scorer, rows []model.FeatureRow) ([]Scored, error) {
	probs, err := scorer.ScoreRows(rows)
	if err != nil {
		return nil, fmt.Errorf("打分失败: %w", err)
	}
	if len(probs) != len(rows) {
		return nil, fmt.Errorf("打分结果 %d 条，样本 %d 条", len(probs), len(rows))
	}
	out := make([]Scored, len(rows))
	for i, r := range rows {
		out[i] = Scored{FeatureRow: r, Probability: probs[i]}
	}
	return out, nil
}

// names 读取名称表，缺失时 ST 过滤失效，只记警告
func (b *Backtester) names() map[string]string {
	names, err := barstore.ReadNames(b.cfg.NamesPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", b.cfg.NamesPath()).Msg("缺少股票名称表，ST 过滤可能失效")
		} else {
			log.Warn().Err(err).Msg("读取股票名称表失败")
		}
		return map[string]string{}
	}
	return names
}
