// Package loader 增量下载日线数据：从本地最后日期续传（重新获取最后一天以修正盘中数据），
// 每只股票写入一次。只下载已收盘的交易日。
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
)

const dateLayout = "2006-01-02"

// Calendar 交易日历
type Calendar interface {
	LatestClosedTradingDay(now time.Time) time.Time
}

// Report 一次下载的统计
type Report struct {
	Total       int      `json:"total"`
	Updated     int      `json:"updated"`
	UpToDate    int      `json:"up_to_date"`
	Failed      int      `json:"failed"`
	NewRows     int      `json:"new_rows"`
	FailedCodes []string `json:"failed_codes,omitempty"`
}

// Loader 日线下载器
type Loader struct {
	cfg      *config.Config
	fetcher  stockdata.Fetcher
	lister   stockdata.StockLister
	calendar Calendar
	now      func() time.Time
}

// New 创建下载器。fetcher 通常是 stockdata.RetryingFetcher。
func New(cfg *config.Config, fetcher stockdata.Fetcher, lister stockdata.StockLister, calendar Calendar) *Loader {
	return &Loader{cfg: cfg, fetcher: fetcher, lister: lister, calendar: calendar, now: time.Now}
}

// Run 更新给定股票；codes 为空时使用本地文件与远端列表的并集
func (l *Loader) Run(ctx context.Context, codes []string) (*Report, error) {
	remote := l.refreshNames(ctx)
	if len(codes) == 0 {
		local, err := barstore.ListCodes(l.cfg.RawDir())
		if err != nil {
			return nil, fmt.Errorf("扫描本地数据失败: %w", err)
		}
		codes = stockdata.MergeCodes(local, remote)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: 没有可下载的股票（本地无数据且获取股票列表失败）", config.ErrMissingInput)
	}

	latest := l.calendar.LatestClosedTradingDay(l.now())
	report := &Report{Total: len(codes)}
	log.Info().Int("codes", len(codes)).Str("latest", latest.Format(dateLayout)).Msg("开始更新日线数据")

	for i, code := range codes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		added, err := l.update(ctx, code, l.cfg.BarPath(code), latest)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) {
				return report, err
			}
			report.Failed++
			report.FailedCodes = append(report.FailedCodes, code)
			metrics.LoaderInstruments.WithLabelValues("failed").Inc()
			log.Warn().Str("code", code).Err(err).Msg("下载失败，跳过")
		case added > 0:
			report.Updated++
			report.NewRows += added
			metrics.LoaderInstruments.WithLabelValues("updated").Inc()
		default:
			report.UpToDate++
			metrics.LoaderInstruments.WithLabelValues("up_to_date").Inc()
		}
		if (i+1)%100 == 0 {
			log.Info().Int("done", i+1).Int("total", len(codes)).Int("failed", report.Failed).Msg("下载进度")
		}
	}

	log.Info().
		Int("updated", report.Updated).
		Int("up_to_date", report.UpToDate).
		Int("failed", report.Failed).
		Int("new_rows", report.NewRows).
		Msg("日线数据更新完成")
	return report, nil
}

// RefreshBenchmark 更新基准指数日线
func (l *Loader) RefreshBenchmark(ctx context.Context) (int, error) {
	latest := l.calendar.LatestClosedTradingDay(l.now())
	added, err := l.update(ctx, l.cfg.BenchmarkCode, l.cfg.BenchmarkPath(), latest)
	if err != nil {
		return added, fmt.Errorf("更新基准指数 %s 失败: %w", l.cfg.BenchmarkCode, err)
	}
	log.Info().Str("code", l.cfg.BenchmarkCode).Int("new_rows", added).Msg("基准指数已更新")
	return added, nil
}

// update 单只股票增量更新，返回新增行数。从本地最后一天开始重新获取，
// 该日数据与远端不一致时以远端为准；有变化时才写文件。
// 下载中途失败时先保存已取得的部分，下次从断点继续。
func (l *Loader) update(ctx context.Context, code, path string, latest time.Time) (int, error) {
	existing, err := barstore.ReadBars(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	start, err := time.Parse(dateLayout, l.cfg.StartDate)
	if err != nil {
		return 0, err
	}
	lastDate := ""
	var lastBar model.Bar
	if len(existing) > 0 {
		lastBar = existing[len(existing)-1]
		lastDate = lastBar.Date
		last, err := time.Parse(dateLayout, lastDate)
		if err != nil {
			return 0, fmt.Errorf("本地日期格式错误 %s: %w", lastDate, err)
		}
		if !last.Before(latest) {
			return 0, nil
		}
		start = last
	}

	r := stockdata.DateRange{Start: start, End: latest}
	if r.Empty() {
		return 0, nil
	}
	fetched, fetchErr := l.fetcher.Fetch(ctx, code, r)

	var incoming []model.Bar
	fresh := 0
	for _, b := range fetched {
		switch {
		case b.Date > lastDate:
			incoming = append(incoming, b)
			fresh++
		case lastDate != "" && b.Date == lastDate && b != lastBar:
			log.Info().Str("code", code).Str("date", b.Date).
				Float64("old_close", lastBar.Close).Float64("close", b.Close).Msg("修正最后一根K线")
			incoming = append(incoming, b)
		}
	}
	if len(incoming) > 0 {
		if err := barstore.WriteBars(path, barstore.MergeBars(existing, incoming)); err != nil {
			return 0, err
		}
	}
	if fetchErr != nil {
		return fresh, fetchErr
	}
	return fresh, nil
}

// refreshNames 获取远端股票列表并更新名称表，失败只记录告警
func (l *Loader) refreshNames(ctx context.Context) []model.Stock {
	if l.lister == nil {
		return nil
	}
	stocks, err := l.lister.ListStocks(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("获取股票列表失败，仅使用本地数据")
		return nil
	}
	stocks = stockdata.FilterUniverse(stocks, l.cfg.UniversePrefixes, l.cfg.ExcludedPrefixes)

	names, err := barstore.ReadNames(l.cfg.NamesPath())
	if err != nil {
		names = map[string]string{}
	}
	changed := false
	for code, name := range stockdata.NameMap(stocks) {
		if names[code] != name {
			names[code] = name
			changed = true
		}
	}
	if changed {
		if err := barstore.WriteNames(l.cfg.NamesPath(), names); err != nil {
			log.Warn().Err(err).Msg("写入股票名称表失败")
		}
	}
	return stocks
}
