package stockdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// 行情接口错误分类
var (
	ErrTransient = errors.New("transient fetch error")
	ErrSession   = errors.New("session dropped")
	ErrPermanent = errors.New("permanent fetch error")
)

const dateLayout = "2006-01-02"

// DateRange 闭区间日期范围
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty 开始日期晚于结束日期
func (r DateRange) Empty() bool { return r.Start.After(r.End) }

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + "~" + r.End.Format(dateLayout)
}

// Chunks 按天数切分为若干连续区间
func (r DateRange) Chunks(days int) []DateRange {
	if r.Empty() || days <= 0 {
		return nil
	}
	var out []DateRange
	for start := r.Start; !start.After(r.End); start = start.AddDate(0, 0, days) {
		end := start.AddDate(0, 0, days-1)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, DateRange{Start: start, End: end})
	}
	return out
}

// Fetcher 日线数据源。失败时可能同时返回已读取的部分数据。
type Fetcher interface {
	Fetch(ctx context.Context, code string, r DateRange) ([]model.Bar, error)
}

// Session 需要登录态的数据源
type Session interface {
	Login(ctx context.Context) error
}

// StockLister 股票列表数据源
type StockLister interface {
	ListStocks(ctx context.Context) ([]model.Stock, error)
}

// Classify 把底层错误归类为 ErrTransient / ErrSession / ErrPermanent
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrSession) || errors.Is(err, ErrPermanent) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "broken pipe", "eof", "timeout", "connection refused"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// ClassifyStatus 按 HTTP 状态码归类
func ClassifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: http %d", ErrSession, status)
	case status == 429 || status >= 500:
		return fmt.Errorf("%w: http %d", ErrTransient, status)
	default:
		return fmt.Errorf("%w: http %d", ErrPermanent, status)
	}
}
