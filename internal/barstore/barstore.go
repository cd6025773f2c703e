// Package barstore 负责本地 CSV 文件的读写：日线、股票名称、股票池、买入清单与回测曲线。
// 所有写入先落到同目录的临时文件，再 rename 覆盖目标文件。
package barstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

var barHeader = []string{"date", "open", "high", "low", "close", "volume", "amount", "turn", "pctChg"}

// ReadBars 读取日线文件，按日期升序返回
func ReadBars(path string) ([]model.Bar, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	idx := headerIndex(records[0])
	bars := make([]model.Bar, 0, len(records)-1)
	for lineNo, rec := range records[1:] {
		bar, err := parseBar(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%s 第%d行: %w", path, lineNo+2, err)
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

func parseBar(rec []string, idx map[string]int) (model.Bar, error) {
	get := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	date := get("date")
	if date == "" {
		return model.Bar{}, errors.New("缺少日期")
	}
	bar := model.Bar{Date: date}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		{"volume", &bar.Volume}, {"amount", &bar.Amount}, {"turn", &bar.Turnover}, {"pctChg", &bar.PctChg},
	}
	for _, f := range fields {
		v := get(f.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("字段 %s 解析失败: %w", f.name, err)
		}
		*f.dst = parsed
	}
	return bar, nil
}

// WriteBars 原子写入日线文件
func WriteBars(path string, bars []model.Bar) error {
	rows := make([][]string, 0, len(bars)+1)
	rows = append(rows, barHeader)
	for _, b := range bars {
		rows = append(rows, []string{
			b.Date, formatFloat(b.Open), formatFloat(b.High), formatFloat(b.Low), formatFloat(b.Close),
			formatFloat(b.Volume), formatFloat(b.Amount), formatFloat(b.Turnover), formatFloat(b.PctChg),
		})
	}
	return writeCSVAtomic(path, rows)
}

// MergeBars 合并新旧日线，按日期去重（新数据覆盖旧数据）并升序排列
func MergeBars(existing, incoming []model.Bar) []model.Bar {
	byDate := make(map[string]model.Bar, len(existing)+len(incoming))
	for _, b := range existing {
		byDate[b.Date] = b
	}
	for _, b := range incoming {
		byDate[b.Date] = b
	}
	merged := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}

// ListCodes 按文件名顺序列出目录下的股票代码，排除基准与名称表
func ListCodes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var codes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if strings.HasPrefix(name, "benchmark_") || name == "stock_names.csv" {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(codes)
	return codes, nil
}

// ReadNames 读取代码到名称的映射
func ReadNames(path string) (map[string]string, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(records))
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue
		}
		names[rec[0]] = rec[1]
	}
	return names, nil
}

// WriteNames 写入代码名称表（按代码排序）
func WriteNames(path string, names map[string]string) error {
	codes := make([]string, 0, len(names))
	for c := range names {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	rows := [][]string{{"code", "code_name"}}
	for _, c := range codes {
		rows = append(rows, []string{c, names[c]})
	}
	return writeCSVAtomic(path, rows)
}

// ReadPool 读取股票池
func ReadPool(path string) ([]model.PoolEntry, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var pool []model.PoolEntry
	for i, rec := range records {
		if i == 0 || len(rec) < 4 {
			continue
		}
		closePrice, _ := strconv.ParseFloat(rec[2], 64)
		avg, _ := strconv.ParseFloat(rec[3], 64)
		pool = append(pool, model.PoolEntry{Code: rec[0], Name: rec[1], Close: closePrice, AvgAmount: avg})
	}
	return pool, nil
}

// WritePool 覆盖写入股票池
func WritePool(path string, pool []model.PoolEntry) error {
	rows := [][]string{{"code", "name", "close", "avg_amount"}}
	for _, p := range pool {
		rows = append(rows, []string{p.Code, p.Name, formatFloat(p.Close), formatFloat(p.AvgAmount)})
	}
	return writeCSVAtomic(path, rows)
}

// ReadBuyList 读取买入清单
func ReadBuyList(path string) ([]model.BuyListItem, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var items []model.BuyListItem
	for i, rec := range records {
		if i == 0 || len(rec) < 7 {
			continue
		}
		item := model.BuyListItem{Code: rec[0], Name: rec[1], Date: rec[2]}
		item.Close, _ = strconv.ParseFloat(rec[3], 64)
		item.PctChg, _ = strconv.ParseFloat(rec[4], 64)
		item.Probability, _ = strconv.ParseFloat(rec[5], 64)
		item.BBWidth, _ = strconv.ParseFloat(rec[6], 64)
		if len(rec) > 7 {
			item.BelowFloor, _ = strconv.ParseBool(rec[7])
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteBuyList 写入买入清单
func WriteBuyList(path string, items []model.BuyListItem) error {
	rows := [][]string{{"code", "name", "date", "close", "pctChg", "probability", "bb_width", "below_floor"}}
	for _, it := range items {
		rows = append(rows, []string{
			it.Code, it.Name, it.Date, formatFloat(it.Close), formatFloat(it.PctChg),
			strconv.FormatFloat(it.Probability, 'f', 4, 64), formatFloat(it.BBWidth),
			strconv.FormatBool(it.BelowFloor),
		})
	}
	return writeCSVAtomic(path, rows)
}

// ListBuyLists 列出目录下所有买入清单的日期，最新在前
func ListBuyLists(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "buy_list_*.csv"))
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(base, "buy_list_"), ".csv"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// WriteCurve 写入回测资金曲线
func WriteCurve(path string, curve []model.CurvePoint) error {
	rows := [][]string{{"date", "strategy_return", "benchmark_return", "strategy_capital", "benchmark_capital", "picks"}}
	for _, p := range curve {
		codes := make([]string, 0, len(p.Picks))
		for _, pk := range p.Picks {
			codes = append(codes, pk.Code)
		}
		rows = append(rows, []string{
			p.Date, formatFloat(p.StrategyReturn), formatFloat(p.BenchmarkReturn),
			formatFloat(p.StrategyCapital), formatFloat(p.BenchmarkCapital), strings.Join(codes, "|"),
		})
	}
	return writeCSVAtomic(path, rows)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s: %w", config.ErrMissingInput, path, err)
		}
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// writeCSVAtomic 先写临时文件再 rename
func writeCSVAtomic(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("替换文件失败: %w", err)
	}
	return nil
}
