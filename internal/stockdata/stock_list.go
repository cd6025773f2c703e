package stockdata

import (
	"sort"
	"strings"

	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// HasAnyPrefix 代码是否以任一前缀开头
func HasAnyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// FilterUniverse 保留沪深主板与创业板股票，剔除科创板、北交所等受限板块
func FilterUniverse(stocks []model.Stock, include, exclude []string) []model.Stock {
	var out []model.Stock
	for _, s := range stocks {
		if !HasAnyPrefix(s.Code, include) || HasAnyPrefix(s.Code, exclude) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// MergeCodes 合并本地与远端代码并去重排序
func MergeCodes(local []string, remote []model.Stock) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	var codes []string
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	for _, c := range local {
		add(c)
	}
	for _, s := range remote {
		add(s.Code)
	}
	sort.Strings(codes)
	return codes
}

// NameMap 股票代码到名称
func NameMap(stocks []model.Stock) map[string]string {
	names := make(map[string]string, len(stocks))
	for _, s := range stocks {
		names[s.Code] = s.Name
	}
	return names
}

// SearchStocks 按代码或名称模糊搜索，最多返回 100 条
func SearchStocks(stocks []model.Stock, keyword string) []model.Stock {
	if keyword == "" {
		return stocks
	}
	keyword = strings.ToUpper(keyword)
	var result []model.Stock
	for _, s := range stocks {
		if strings.Contains(strings.ToUpper(s.Code), keyword) || strings.Contains(strings.ToUpper(s.Name), keyword) {
			result = append(result, s)
			if len(result) >= 100 {
				break
			}
		}
	}
	return result
}
