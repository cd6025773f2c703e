// Package labels 以指数为基准重新计算样本标签：跑赢基准超过阈值且自身收益为正的样本记为正样本。
package labels

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// IndexBenchmark 指数在各交易日之后 horizon 根的收益率
type IndexBenchmark struct {
	returns map[string]float64
}

// NewIndexBenchmark 由指数K线构造基准
func NewIndexBenchmark(bars []model.Bar, horizon int) *IndexBenchmark {
	return &IndexBenchmark{returns: features.ForwardReturns(bars, horizon)}
}

// LoadIndexBenchmark 读取基准K线文件
func LoadIndexBenchmark(path string, horizon int) (*IndexBenchmark, error) {
	bars, err := barstore.ReadBars(path)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: 基准文件为空 %s", config.ErrMissingInput, path)
	}
	return NewIndexBenchmark(bars, horizon), nil
}

// Return 某日的基准收益，缺失时为 0
func (b *IndexBenchmark) Return(date string) (float64, bool) {
	r, ok := b.returns[date]
	return r, ok
}

// Label 超额收益大于 alpha 且绝对收益大于 minAbs 时为 1
func Label(forward, bench, alpha, minAbs float64) int {
	if forward-bench > alpha && forward > minAbs {
		return 1
	}
	return 0
}

// Report 标签修正结果
type Report struct {
	Rows           int     `json:"rows"`
	Changed        int     `json:"changed"`
	MissingBench   int     `json:"missing_bench"`
	PositiveBefore float64 `json:"positive_before"`
	PositiveAfter  float64 `json:"positive_after"`
}

// Refiner 标签修正器
type Refiner struct {
	cfg *config.Config
}

// New 创建标签修正器
func New(cfg *config.Config) *Refiner {
	return &Refiner{cfg: cfg}
}

// Run 读取基准与数据集，原地改写 target 与 excess_return
func (r *Refiner) Run() (*Report, error) {
	bench, err := LoadIndexBenchmark(r.cfg.BenchmarkPath(), r.cfg.Horizon)
	if err != nil {
		return nil, fmt.Errorf("读取基准指数失败: %w", err)
	}
	rows, err := dataset.Read(r.cfg.DatasetPath())
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}

	updates, report := Refine(rows, bench, r.cfg.AlphaThreshold, r.cfg.MinAbsReturn)
	if err := dataset.UpdateLabels(r.cfg.DatasetPath(), updates); err != nil {
		return nil, fmt.Errorf("写回标签失败: %w", err)
	}

	log.Info().Int("rows", report.Rows).Int("changed", report.Changed).
		Int("missing_bench", report.MissingBench).
		Float64("positive_before", report.PositiveBefore).
		Float64("positive_after", report.PositiveAfter).
		Str("benchmark", r.cfg.BenchmarkCode).Msg("标签修正完成")
	return report, nil
}

// Refine 计算每行的新标签，按日期关联基准，缺失的基准收益记为 0
func Refine(rows []model.FeatureRow, bench *IndexBenchmark, alpha, minAbs float64) ([]dataset.LabelUpdate, *Report) {
	report := &Report{Rows: len(rows), PositiveBefore: dataset.PositiveRatio(rows)}
	updates := make([]dataset.LabelUpdate, 0, len(rows))
	pos := 0
	for _, row := range rows {
		b, ok := bench.Return(row.Date)
		if !ok {
			report.MissingBench++
		}
		target := Label(row.ForwardReturn, b, alpha, minAbs)
		if target != row.Target {
			report.Changed++
		}
		pos += target
		updates = append(updates, dataset.LabelUpdate{
			Code:         row.Code,
			Date:         row.Date,
			ExcessReturn: row.ForwardReturn - b,
			Target:       target,
		})
	}
	if len(rows) > 0 {
		report.PositiveAfter = float64(pos) / float64(len(rows))
	}
	return updates, report
}
