package stockdata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

func TestFilterUniverse(t *testing.T) {
	cfg := config.Default()
	stocks := []model.Stock{
		{Code: "sh.600000"}, {Code: "sh.688981"}, {Code: "sz.000001"},
		{Code: "sz.300750"}, {Code: "sz.830799"}, {Code: "bj.430047"}, {Code: "sh.000905"},
	}
	got := FilterUniverse(stocks, cfg.UniversePrefixes, cfg.ExcludedPrefixes)
	codes := make([]string, 0, len(got))
	for _, s := range got {
		codes = append(codes, s.Code)
	}
	assert.Equal(t, []string{"sh.600000", "sz.000001", "sz.300750"}, codes)
}

func TestMergeCodesAndSearch(t *testing.T) {
	remote := []model.Stock{{Code: "sz.000001", Name: "平安银行"}, {Code: "sh.600000", Name: "浦发银行"}}
	assert.Equal(t, []string{"sh.600000", "sh.600519", "sz.000001"}, MergeCodes([]string{"sh.600519", "sh.600000"}, remote))

	assert.Len(t, SearchStocks(remote, "平安"), 1)
	assert.Len(t, SearchStocks(remote, "SH.6"), 1)
	assert.Len(t, SearchStocks(remote, ""), 2)
	assert.Equal(t, "浦发银行", NameMap(remote)["sh.600000"])
}
