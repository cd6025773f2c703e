package dataset

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// Builder 对股票池内每只股票计算特征与初始标签，汇总写入数据集
type Builder struct {
	cfg *config.Config
}

// NewBuilder 创建数据集生成器
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Run 读取股票池与K线，覆盖写入数据集，返回样本数
func (b *Builder) Run() (int, error) {
	pool, err := barstore.ReadPool(b.cfg.PoolPath())
	if err != nil {
		return 0, fmt.Errorf("读取股票池失败: %w", err)
	}
	if len(pool) == 0 {
		return 0, fmt.Errorf("%w: 股票池为空", config.ErrMissingInput)
	}

	log.Info().Int("stocks", len(pool)).Int("horizon", b.cfg.Horizon).
		Float64("target", b.cfg.InitialTarget).Msg("开始生成特征数据集")

	var rows []model.FeatureRow
	skipped := 0
	for i, p := range pool {
		bars, err := barstore.ReadBars(b.cfg.BarPath(p.Code))
		if err != nil {
			skipped++
			log.Warn().Str("code", p.Code).Err(err).Msg("读取K线失败，跳过")
			continue
		}
		rows = append(rows, features.Build(p.Code, bars, b.cfg.Horizon, b.cfg.InitialTarget)...)
		if (i+1)%100 == 0 {
			log.Info().Int("done", i+1).Int("total", len(pool)).Int("rows", len(rows)).Msg("特征计算进度")
		}
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: 股票池内没有可用样本", config.ErrMissingInput)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Code < rows[j].Code
	})

	if err := Write(b.cfg.DatasetPath(), rows); err != nil {
		return 0, fmt.Errorf("写入数据集失败: %w", err)
	}
	metrics.DatasetRows.Set(float64(len(rows)))
	log.Info().Int("rows", len(rows)).Int("skipped", skipped).
		Float64("positive_ratio", PositiveRatio(rows)).
		Str("path", b.cfg.DatasetPath()).Msg("数据集生成完成")
	return len(rows), nil
}

// PositiveRatio 正样本比例
func PositiveRatio(rows []model.FeatureRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	pos := 0
	for _, r := range rows {
		pos += r.Target
	}
	return float64(pos) / float64(len(rows))
}
