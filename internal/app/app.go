// Package app 组装各流水线组件，供命令行与 HTTP 服务共用
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/backtest"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/holiday"
	"github.com/enhen-x/Quant-A-Share/internal/labels"
	"github.com/enhen-x/Quant-A-Share/internal/loader"
	"github.com/enhen-x/Quant-A-Share/internal/mail"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/pipeline"
	"github.com/enhen-x/Quant-A-Share/internal/scanner"
	"github.com/enhen-x/Quant-A-Share/internal/selection"
	"github.com/enhen-x/Quant-A-Share/internal/service"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
	"github.com/enhen-x/Quant-A-Share/internal/trainer"
)

// 异步任务类型
const (
	TaskWeekly   = "weekly"
	TaskScan     = "scan"
	TaskBacktest = "backtest"
	TaskTrain    = "train"
)

// App 共享的配置、数据源与交易日历。
// 所有流程串行执行：定时任务、HTTP 任务与控制台共用同一把运行锁。
type App struct {
	Cfg      *config.Config
	Calendar *holiday.Calendar
	Fetcher  stockdata.Fetcher
	Lister   stockdata.StockLister
	Mailer   *mail.Mailer

	running chan struct{}
}

// New 按配置创建东方财富数据源、重试包装与交易日历
func New(cfg *config.Config) *App {
	sched := config.GetSchedulerConfig()
	cal := holiday.NewCalendar(sched.UseHolidayAPI)
	if err := cal.LoadCustomHolidays(sched.HolidayFile); err != nil {
		log.Warn().Err(err).Msg("加载自定义节假日失败")
	}
	client := stockdata.NewEastMoneyClient(cfg.Fetch.Timeout)
	return &App{
		Cfg:      cfg,
		Calendar: cal,
		Fetcher:  stockdata.NewRetryingFetcher(client, client, cfg.Fetch),
		Lister:   client,
		Mailer:   mail.FromEnv(),
		running:  make(chan struct{}, 1),
	}
}

// exclusive 获取运行锁后执行 fn；等待期间 ctx 取消则放弃
func exclusive[T any](ctx context.Context, a *App, name string, fn func() (T, error)) (T, error) {
	select {
	case a.running <- struct{}{}:
	default:
		log.Info().Str("step", name).Msg("已有流程在运行，等待其结束")
		select {
		case a.running <- struct{}{}:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	defer func() { <-a.running }()
	return fn()
}

// Loader 日线下载器
func (a *App) Loader() *loader.Loader {
	return loader.New(a.Cfg, a.Fetcher, a.Lister, a.Calendar)
}

// InitReport 初始化数据的结果
type InitReport struct {
	Load      *loader.Report `json:"load"`
	Benchmark int            `json:"benchmark_rows"`
	PoolSize  int            `json:"pool_size"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// InitData 下载日线、刷新基准指数并筛选股票池
func (a *App) InitData(ctx context.Context) (*InitReport, error) {
	return exclusive(ctx, a, "init", func() (*InitReport, error) { return a.initData(ctx) })
}

func (a *App) initData(ctx context.Context) (*InitReport, error) {
	l := a.Loader()
	rep := &InitReport{}
	load, err := l.Run(ctx, nil)
	rep.Load = load
	if err != nil {
		return rep, err
	}
	n, err := l.RefreshBenchmark(ctx)
	if err != nil {
		rep.Warnings = append(rep.Warnings, err.Error())
		log.Warn().Err(err).Msg("基准指数更新失败")
	}
	rep.Benchmark = n
	pool, err := selection.New(a.Cfg).Run()
	rep.PoolSize = len(pool)
	return rep, err
}

// FeatureReport 特征工程与标签修正的结果
type FeatureReport struct {
	Rows     int            `json:"rows"`
	Labels   *labels.Report `json:"labels,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Features 计算特征并按基准指数重打标签，缺少基准时保留绝对收益标签
func (a *App) Features(ctx context.Context) (*FeatureReport, error) {
	return exclusive(ctx, a, "features", a.features)
}

func (a *App) features() (*FeatureReport, error) {
	rep := &FeatureReport{}
	n, err := dataset.NewBuilder(a.Cfg).Run()
	rep.Rows = n
	if err != nil {
		return rep, err
	}
	if err := config.RequireFile(a.Cfg.BenchmarkPath()); err != nil {
		rep.Warnings = append(rep.Warnings, err.Error())
		log.Warn().Err(err).Msg("缺少基准指数文件，跳过标签修正")
		return rep, nil
	}
	lr, err := labels.New(a.Cfg).Run()
	rep.Labels = lr
	return rep, err
}

// Train 训练模型
func (a *App) Train(ctx context.Context) (*trainer.Report, error) {
	return exclusive(ctx, a, "train", trainer.New(a.Cfg).Run)
}

// Backtest 验证集回测
func (a *App) Backtest(ctx context.Context) (*model.BacktestReport, error) {
	return exclusive(ctx, a, "backtest", backtest.New(a.Cfg, nil).Run)
}

// RandomBacktest 随机窗口回测
func (a *App) RandomBacktest(ctx context.Context) (*model.RandomReport, error) {
	r := a.Cfg.Random
	return exclusive(ctx, a, "random_backtest", func() (*model.RandomReport, error) {
		return backtest.New(a.Cfg, nil).RunRandom(r.Trials, r.Weeks, r.Seed)
	})
}

// Audit 审计验证集交易
func (a *App) Audit(ctx context.Context) ([]model.AuditRecord, error) {
	return exclusive(ctx, a, "audit", backtest.New(a.Cfg, nil).Audit)
}

// Scan 实盘扫描
func (a *App) Scan(ctx context.Context) (*scanner.Result, error) {
	return exclusive(ctx, a, "scan", scanner.New(a.Cfg, nil).Run)
}

// Weekly 周度流程，配置了邮件时发送买入清单
func (a *App) Weekly(ctx context.Context) (*pipeline.Summary, error) {
	w := pipeline.NewWeekly(a.Cfg, a.Loader(), selection.New(a.Cfg), dataset.NewBuilder(a.Cfg),
		labels.New(a.Cfg), scanner.New(a.Cfg, nil))
	if a.Mailer != nil && a.Mailer.Enabled() {
		w.WithNotifier(a.Mailer.NotifyBuyList)
	}
	return exclusive(ctx, a, "weekly", func() (*pipeline.Summary, error) { return w.Run(ctx) })
}

// Jobs HTTP 服务可提交的任务
func (a *App) Jobs() map[string]service.Job {
	return map[string]service.Job{
		TaskWeekly:   func(ctx context.Context) (any, error) { return a.Weekly(ctx) },
		TaskScan:     func(ctx context.Context) (any, error) { return a.Scan(ctx) },
		TaskBacktest: func(ctx context.Context) (any, error) { return a.Backtest(ctx) },
		TaskTrain:    func(ctx context.Context) (any, error) { return a.Train(ctx) },
	}
}
