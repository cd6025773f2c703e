package stockdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/enhen-x/Quant-A-Share/internal/model"
)

const (
	defaultKlineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	defaultListURL  = "https://push2.eastmoney.com/api/qt/clist/get"
	defaultHomeURL  = "https://quote.eastmoney.com/"

	// 沪深A股（含创业板），北交所与科创板由过滤规则剔除
	listFilter   = "m:1+t:2,m:1+t:23,m:0+t:6,m:0+t:80,m:0+t:81+s:2048"
	listPageSize = 500

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://quote.eastmoney.com/"
)

// EastMoneyClient 东方财富日线与股票列表客户端
type EastMoneyClient struct {
	KlineURL string
	ListURL  string
	HomeURL  string

	mu   sync.Mutex
	http *http.Client
}

// NewEastMoneyClient 创建客户端
func NewEastMoneyClient(timeout time.Duration) *EastMoneyClient {
	jar, _ := cookiejar.New(nil)
	return &EastMoneyClient{
		KlineURL: defaultKlineURL,
		ListURL:  defaultListURL,
		HomeURL:  defaultHomeURL,
		http:     &http.Client{Timeout: timeout, Jar: jar},
	}
}

// Login 重新建立会话：清空 cookie 并访问首页
func (c *EastMoneyClient) Login(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.http.Jar = jar
	c.mu.Unlock()

	body, err := c.get(ctx, c.HomeURL)
	if err != nil {
		return fmt.Errorf("重新登录失败: %w", err)
	}
	log.Debug().Int("bytes", len(body)).Msg("东方财富会话已刷新")
	return nil
}

// Fetch 获取日期范围内的前复权日线
func (c *EastMoneyClient) Fetch(ctx context.Context, code string, r DateRange) ([]model.Bar, error) {
	secid, err := SecID(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	q := url.Values{}
	q.Set("secid", secid)
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")
	q.Set("klt", "101")
	q.Set("fqt", "1")
	q.Set("beg", r.Start.Format("20060102"))
	q.Set("end", r.End.Format("20060102"))

	body, err := c.get(ctx, c.KlineURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parseKlines(body, code)
}

// parseKlines 解析 data.klines：日期,开,收,高,低,量(手),额,振幅,涨跌幅,涨跌额,换手率
func parseKlines(body []byte, code string) ([]model.Bar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s 响应不是合法JSON", ErrTransient, code)
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, fmt.Errorf("%w: %s 无数据", ErrPermanent, code)
	}
	klines := data.Get("klines")
	if !klines.IsArray() {
		return nil, nil
	}
	arr := klines.Array()
	out := make([]model.Bar, 0, len(arr))
	for _, v := range arr {
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) < 11 {
			continue
		}
		vals := make([]float64, 11)
		ok := true
		for i := 1; i < 11; i++ {
			f, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = f
		}
		if !ok {
			continue
		}
		out = append(out, model.Bar{
			Date:     parts[0],
			Open:     vals[1],
			Close:    vals[2],
			High:     vals[3],
			Low:      vals[4],
			Volume:   vals[5] * 100,
			Amount:   vals[6],
			PctChg:   vals[8],
			Turnover: vals[10],
		})
	}
	return out, nil
}

// ListStocks 分页获取沪深A股列表，结果缓存一天
func (c *EastMoneyClient) ListStocks(ctx context.Context) ([]model.Stock, error) {
	var cached []model.Stock
	if err := getCacheProvider().Get(stockListCacheKey, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	var all []model.Stock
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(page))
		q.Set("pz", strconv.Itoa(listPageSize))
		q.Set("po", "1")
		q.Set("np", "1")
		q.Set("fltt", "2")
		q.Set("fid", "f12")
		q.Set("fs", listFilter)
		q.Set("fields", "f12,f13,f14")
		body, err := c.get(ctx, c.ListURL+"?"+q.Encode())
		if err != nil {
			return nil, err
		}
		stocks, total := parseStockList(body)
		all = append(all, stocks...)
		if len(stocks) == 0 || len(all) >= total {
			break
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: 股票列表为空", ErrTransient)
	}
	if err := getCacheProvider().Set(stockListCacheKey, all, stockListCacheTTL); err != nil {
		log.Warn().Err(err).Msg("股票列表写入缓存失败")
	}
	log.Info().Int("count", len(all)).Msg("从东方财富获取股票列表")
	return all, nil
}

// parseStockList 解析 data.diff，兼容数组与对象两种形式
func parseStockList(body []byte) ([]model.Stock, int) {
	total := int(gjson.GetBytes(body, "data.total").Int())
	var stocks []model.Stock
	gjson.GetBytes(body, "data.diff").ForEach(func(_, item gjson.Result) bool {
		raw := strings.TrimSpace(item.Get("f12").String())
		if raw == "" {
			return true
		}
		market := "SZ"
		prefix := "sz."
		if item.Get("f13").Int() == 1 {
			market = "SH"
			prefix = "sh."
		}
		stocks = append(stocks, model.Stock{
			Code:   prefix + raw,
			Name:   strings.TrimSpace(item.Get("f14").String()),
			Market: market,
		})
		return true
	})
	return stocks, total
}

func (c *EastMoneyClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	c.mu.Lock()
	client := c.http
	c.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ClassifyStatus(resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(err)
	}
	return body, nil
}

// SecID 把 sh.600000 / sz.000001 转为东方财富 secid（1.600000 / 0.000001）
func SecID(code string) (string, error) {
	market, num, ok := strings.Cut(code, ".")
	if !ok || len(num) != 6 {
		return "", fmt.Errorf("无效的股票代码: %s", code)
	}
	switch market {
	case "sh":
		return "1." + num, nil
	case "sz":
		return "0." + num, nil
	default:
		return "", fmt.Errorf("不支持的市场: %s", code)
	}
}
