package barstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

func TestWriteReadBarsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw", "sh.600000.csv")
	bars := []model.Bar{
		{Date: "2024-01-03", Open: 10.1, High: 10.5, Low: 9.9, Close: 10.3, Volume: 12000, Amount: 123600.5, Turnover: 0.12, PctChg: 1.98},
		{Date: "2024-01-02", Open: 10, High: 10.2, Low: 9.8, Close: 10.1, Volume: 10000, Amount: 101000, Turnover: 0.1, PctChg: 0.5},
	}
	require.NoError(t, WriteBars(path, bars))

	got, err := ReadBars(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-02", got[0].Date)
	assert.Equal(t, bars[0], got[1])

	// 没有遗留临时文件
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteBarsIsByteStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sz.000001.csv")
	bars := []model.Bar{{Date: "2024-01-02", Close: 9.87, Volume: 1}}
	require.NoError(t, WriteBars(path, bars))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	reread, err := ReadBars(path)
	require.NoError(t, err)
	require.NoError(t, WriteBars(path, reread))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMergeBarsDedupesAndSorts(t *testing.T) {
	existing := []model.Bar{{Date: "2024-01-02", Close: 1}, {Date: "2024-01-03", Close: 2}}
	incoming := []model.Bar{{Date: "2024-01-03", Close: 2.5}, {Date: "2024-01-04", Close: 3}}
	merged := MergeBars(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, []string{merged[0].Date, merged[1].Date, merged[2].Date})
	assert.Equal(t, 2.5, merged[1].Close)
}

func TestReadBarsMissingFile(t *testing.T) {
	_, err := ReadBars(filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingInput))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestListCodesSkipsAuxFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sz.000001.csv", "sh.600000.csv", "benchmark_sh000905.csv", "stock_names.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("date\n"), 0o644))
	}
	codes, err := ListCodes(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh.600000", "sz.000001"}, codes)
}

func TestPoolNamesAndBuyList(t *testing.T) {
	dir := t.TempDir()

	pool := []model.PoolEntry{{Code: "sh.600000", Name: "浦发银行", Close: 8.5, AvgAmount: 1e9}}
	require.NoError(t, WritePool(filepath.Join(dir, "pool.csv"), pool))
	gotPool, err := ReadPool(filepath.Join(dir, "pool.csv"))
	require.NoError(t, err)
	assert.Equal(t, pool, gotPool)

	names := map[string]string{"sz.000001": "平安银行", "sh.600000": "浦发银行"}
	require.NoError(t, WriteNames(filepath.Join(dir, "names.csv"), names))
	gotNames, err := ReadNames(filepath.Join(dir, "names.csv"))
	require.NoError(t, err)
	assert.Equal(t, names, gotNames)

	items := []model.BuyListItem{{Code: "sh.600000", Name: "浦发银行", Date: "2024-01-05", Close: 8.5, PctChg: 1.2, Probability: 0.6123, BBWidth: 0.08, BelowFloor: true}}
	require.NoError(t, WriteBuyList(filepath.Join(dir, "buy_list_2024-01-05.csv"), items))
	gotItems, err := ReadBuyList(filepath.Join(dir, "buy_list_2024-01-05.csv"))
	require.NoError(t, err)
	assert.Equal(t, items, gotItems)

	require.NoError(t, WriteBuyList(filepath.Join(dir, "buy_list_2024-01-12.csv"), nil))
	dates, err := ListBuyLists(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-12", "2024-01-05"}, dates)
}
