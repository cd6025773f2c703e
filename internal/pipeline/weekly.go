// Package pipeline 周度一键流程：更新数据 -> 选股池 -> 特征 -> 标签 -> 实盘扫描。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/labels"
	"github.com/enhen-x/Quant-A-Share/internal/loader"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/scanner"
)

// 步骤名称
const (
	StepLoad      = "load"
	StepBenchmark = "benchmark"
	StepSelect    = "select"
	StepFeatures  = "features"
	StepLabels    = "labels"
	StepScan      = "scan"
)

// Loader 行情下载
type Loader interface {
	Run(ctx context.Context, codes []string) (*loader.Report, error)
	RefreshBenchmark(ctx context.Context) (int, error)
}

// Selector 股票池筛选
type Selector interface {
	Run() ([]model.PoolEntry, error)
}

// Builder 特征数据集生成
type Builder interface {
	Run() (int, error)
}

// Refiner 标签修正
type Refiner interface {
	Run() (*labels.Report, error)
}

// Scanner 实盘扫描
type Scanner interface {
	Run() (*scanner.Result, error)
}

// Notifier 扫描结果通知
type Notifier func(ctx context.Context, res *scanner.Result) error

// Summary 一次周度流程的结果
type Summary struct {
	Load      *loader.Report  `json:"load,omitempty"`
	PoolSize  int             `json:"pool_size"`
	Rows      int             `json:"rows"`
	Labels    *labels.Report  `json:"labels,omitempty"`
	Scan      *scanner.Result `json:"scan,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  string          `json:"duration"`
}

// Weekly 周度流程编排
type Weekly struct {
	cfg      *config.Config
	loader   Loader
	selector Selector
	builder  Builder
	refiner  Refiner
	scanner  Scanner
	notify   Notifier
}

// NewWeekly 创建周度流程
func NewWeekly(cfg *config.Config, l Loader, s Selector, b Builder, r Refiner, sc Scanner) *Weekly {
	return &Weekly{cfg: cfg, loader: l, selector: s, builder: b, refiner: r, scanner: sc}
}

// WithNotifier 扫描完成后发送通知，失败只记警告
func (w *Weekly) WithNotifier(n Notifier) *Weekly {
	w.notify = n
	return w
}

// Run 依次执行各步骤。基准刷新失败与基准缺失只记警告，其余步骤失败即停止。
func (w *Weekly) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{StartedAt: time.Now()}
	defer func() { sum.Duration = time.Since(sum.StartedAt).Round(time.Second).String() }()
	log.Info().Msg("========== 周度流程开始 ==========")

	if err := w.step(ctx, StepLoad, func() error {
		r, err := w.loader.Run(ctx, nil)
		sum.Load = r
		return err
	}); err != nil {
		return sum, err
	}

	if err := w.step(ctx, StepBenchmark, func() error {
		_, err := w.loader.RefreshBenchmark(ctx)
		return err
	}); err != nil {
		if ctx.Err() != nil {
			return sum, err
		}
		sum.Warnings = append(sum.Warnings, err.Error())
		log.Warn().Err(err).Msg("基准指数更新失败，继续使用已有数据")
	}

	if err := w.step(ctx, StepSelect, func() error {
		pool, err := w.selector.Run()
		sum.PoolSize = len(pool)
		return err
	}); err != nil {
		return sum, err
	}

	if err := w.step(ctx, StepFeatures, func() error {
		n, err := w.builder.Run()
		sum.Rows = n
		return err
	}); err != nil {
		return sum, err
	}

	if err := config.RequireFile(w.cfg.BenchmarkPath()); err != nil {
		sum.Warnings = append(sum.Warnings, err.Error())
		log.Warn().Err(err).Msg("缺少基准指数文件，跳过标签修正，沿用绝对收益标签")
	} else if err := w.step(ctx, StepLabels, func() error {
		r, err := w.refiner.Run()
		sum.Labels = r
		return err
	}); err != nil {
		return sum, err
	}

	if err := w.step(ctx, StepScan, func() error {
		r, err := w.scanner.Run()
		sum.Scan = r
		return err
	}); err != nil {
		return sum, err
	}

	if w.notify != nil && sum.Scan != nil && len(sum.Scan.Items) > 0 {
		if err := w.notify(ctx, sum.Scan); err != nil {
			sum.Warnings = append(sum.Warnings, err.Error())
			log.Warn().Err(err).Msg("发送买入清单通知失败")
		}
	}

	log.Info().Int("pool", sum.PoolSize).Int("rows", sum.Rows).
		Int("warnings", len(sum.Warnings)).Msg("========== 周度流程完成 ==========")
	return sum, nil
}

func (w *Weekly) step(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info().Str("step", name).Msg("开始")
	start := time.Now()
	err := fn()
	metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StepFailures.WithLabelValues(name).Inc()
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info().Str("step", name).Dur("elapsed", time.Since(start)).Msg("完成")
	return nil
}
