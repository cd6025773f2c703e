// Package scheduler 定时执行周度流程与收盘后扫描
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/config"
)

// Job 定时任务
type Job func(ctx context.Context) error

// TradingCalendar 交易日判断
type TradingCalendar interface {
	IsTradingDay(date time.Time) bool
}

// Scheduler 基于 cron 表达式的任务调度，失败按配置重试
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.SchedulerConfig
	calendar TradingCalendar
	baseCtx  context.Context
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New 创建调度器，calendar 为空时不做交易日检查
func New(ctx context.Context, cfg *config.SchedulerConfig, calendar TradingCalendar) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cronLogger{}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		cfg:      cfg,
		calendar: calendar,
		baseCtx:  ctx,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Register 注册周度流程与每日扫描，返回注册的任务数
func (s *Scheduler) Register(weekly, dailyScan Job) (int, error) {
	n := 0
	if s.cfg.Weekly.Enabled && weekly != nil {
		if _, err := s.cron.AddFunc(s.cfg.Weekly.Schedule, s.wrap("周度流程", false, weekly)); err != nil {
			return n, fmt.Errorf("周度流程定时表达式无效 %q: %w", s.cfg.Weekly.Schedule, err)
		}
		log.Info().Str("schedule", s.cfg.Weekly.Schedule).Msg("已注册周度流程定时任务")
		n++
	} else {
		log.Info().Msg("周度流程定时任务已禁用")
	}

	if s.cfg.DailyScan.Enabled && dailyScan != nil {
		if _, err := s.cron.AddFunc(s.cfg.DailyScan.Schedule, s.wrap("收盘后扫描", true, dailyScan)); err != nil {
			return n, fmt.Errorf("扫描定时表达式无效 %q: %w", s.cfg.DailyScan.Schedule, err)
		}
		log.Info().Str("schedule", s.cfg.DailyScan.Schedule).Msg("已注册收盘后扫描定时任务")
		n++
	}
	return n, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.Info().Time("next", e.Next).Msg("下次执行时间")
	}
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("定时任务已停止")
}

func (s *Scheduler) wrap(name string, tradingDayOnly bool, job Job) func() {
	return func() {
		if tradingDayOnly && s.calendar != nil && !s.calendar.IsTradingDay(s.now()) {
			log.Info().Str("job", name).Msg("今天不是交易日，跳过")
			return
		}
		if err := s.runWithRetry(s.baseCtx, name, job); err != nil {
			log.Error().Str("job", name).Err(err).Msg("定时任务最终失败")
		}
	}
}

// runWithRetry 执行任务，失败后间隔 RetryInterval 重试，最多 RetryCount 次
func (s *Scheduler) runWithRetry(ctx context.Context, name string, job Job) error {
	maxRetry := s.cfg.RetryCount
	if maxRetry < 0 {
		maxRetry = 0
	}
	var err error
	for i := 0; i <= maxRetry; i++ {
		if i > 0 {
			log.Info().Str("job", name).Int("attempt", i).Msg("重试")
		} else {
			log.Info().Str("job", name).Msg("开始执行")
		}

		start := time.Now()
		if err = job(ctx); err == nil {
			log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("执行完成")
			return nil
		}
		log.Warn().Str("job", name).Err(err).Msg("执行失败")
		if ctx.Err() != nil {
			return err
		}
		if i < maxRetry {
			log.Info().Str("job", name).Dur("interval", s.cfg.RetryInterval).Msg("稍后重试")
			if serr := s.sleep(ctx, s.cfg.RetryInterval); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("%s 已重试 %d 次: %w", name, maxRetry, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger 把 cron 内部日志接到 zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
