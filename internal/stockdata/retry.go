package stockdata

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// Sleeper 可替换的等待函数，测试中注入以跳过真实等待
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryingFetcher 在任意 Fetcher 外层实现分段、限速、熔断、退避重试、
// 会话重建以及断点续传。
type RetryingFetcher struct {
	inner   Fetcher
	session Session
	cfg     config.FetchConfig

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	sleep   Sleeper

	randMu sync.Mutex
	rand   *rand.Rand
}

// RetryOption 可选项
type RetryOption func(*RetryingFetcher)

// WithSleeper 替换等待函数
func WithSleeper(s Sleeper) RetryOption {
	return func(f *RetryingFetcher) { f.sleep = s }
}

// WithRandSeed 固定抖动的随机种子
func WithRandSeed(seed int64) RetryOption {
	return func(f *RetryingFetcher) { f.rand = rand.New(rand.NewSource(seed)) }
}

// NewRetryingFetcher 包装数据源。session 为 nil 时遇到会话错误只做普通重试。
func NewRetryingFetcher(inner Fetcher, session Session, cfg config.FetchConfig, opts ...RetryOption) *RetryingFetcher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:     "eastmoney",
		Interval: 60 * time.Second,
		Timeout:  cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// 单只股票的永久错误不代表数据源故障
			return err == nil || errors.Is(err, ErrPermanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("熔断器状态变化")
		},
	}
	f := &RetryingFetcher{
		inner:   inner,
		session: session,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(limit, 1),
		sleep:   contextSleep,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 按 ChunkDays 分段获取。返回的错误之前已读取的数据一并返回。
func (f *RetryingFetcher) Fetch(ctx context.Context, code string, r DateRange) ([]model.Bar, error) {
	chunkDays := f.cfg.ChunkDays
	if chunkDays <= 0 {
		chunkDays = 30
	}
	var all []model.Bar
	for _, chunk := range r.Chunks(chunkDays) {
		bars, err := f.fetchChunk(ctx, code, chunk)
		all = append(all, bars...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func (f *RetryingFetcher) fetchChunk(ctx context.Context, code string, chunk DateRange) ([]model.Bar, error) {
	cursor := chunk
	var got []model.Bar
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return got, err
		}
		bars, err := f.call(ctx, code, cursor)
		got = append(got, bars...)
		if err == nil {
			return got, nil
		}
		if ctx.Err() != nil {
			return got, ctx.Err()
		}

		// 断点续传：从最后一条成功读取的日期的下一天继续
		if len(bars) > 0 {
			if last, perr := time.Parse(dateLayout, bars[len(bars)-1].Date); perr == nil {
				cursor.Start = last.AddDate(0, 0, 1)
				if cursor.Empty() {
					return got, nil
				}
			}
		}

		if errors.Is(err, ErrPermanent) {
			return got, err
		}
		if attempt >= f.cfg.MaxRetries {
			return got, fmt.Errorf("%s %s 重试%d次后仍失败: %w", code, cursor, attempt, err)
		}
		metrics.FetchRetries.Inc()

		if errors.Is(err, ErrSession) && f.session != nil {
			log.Warn().Str("code", code).Err(err).Msg("会话失效，重新登录")
			if lerr := f.session.Login(ctx); lerr != nil {
				log.Warn().Err(lerr).Msg("重新登录失败")
			}
		}

		wait := f.backoff(attempt + 1)
		log.Debug().Str("code", code).Int("attempt", attempt+1).Dur("wait", wait).Err(err).Msg("请求失败，退避重试")
		if serr := f.sleep(ctx, wait); serr != nil {
			return got, serr
		}
	}
}

func (f *RetryingFetcher) call(ctx context.Context, code string, r DateRange) ([]model.Bar, error) {
	var bars []model.Bar
	_, err := f.breaker.Execute(func() (interface{}, error) {
		b, err := f.inner.Fetch(ctx, code, r)
		bars = b
		return nil, Classify(err)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return bars, err
}

// backoff 指数退避加抖动：base*2^(n-1)，上限 MaxBackoff，再叠加 [0, d/2) 的随机量
func (f *RetryingFetcher) backoff(n int) time.Duration {
	base := f.cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(n-1)
	if f.cfg.MaxBackoff > 0 && (d > f.cfg.MaxBackoff || d <= 0) {
		d = f.cfg.MaxBackoff
	}
	half := int64(d / 2)
	if half > 0 {
		f.randMu.Lock()
		d += time.Duration(f.rand.Int63n(half))
		f.randMu.Unlock()
	}
	return d
}
