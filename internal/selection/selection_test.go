package selection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

func makeBars(n int, end time.Time, closePx, amount float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		d := end.AddDate(0, 0, i-n+1)
		bars[i] = model.Bar{Date: d.Format("2006-01-02"), Close: closePx, Amount: amount}
	}
	return bars
}

func newSelector(t *testing.T, now time.Time) (*Selector, *config.Config) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	s := New(cfg)
	s.now = func() time.Time { return now }
	return s, cfg
}

func TestEvaluateHardFilters(t *testing.T) {
	now := time.Date(2024, 3, 8, 15, 0, 0, 0, time.Local)
	s, _ := newSelector(t, now)

	_, ok := s.Evaluate("sh.600000", makeBars(80, now, 10, 1e8))
	assert.True(t, ok)

	_, ok = s.Evaluate("sh.600000", makeBars(59, now, 10, 1e8))
	assert.False(t, ok, "历史不足")

	_, ok = s.Evaluate("sh.600000", makeBars(80, now, 26, 1e8))
	assert.False(t, ok, "价格过高")

	_, ok = s.Evaluate("sh.600000", makeBars(80, now, 2.5, 1e8))
	assert.False(t, ok, "价格过低")

	_, ok = s.Evaluate("sh.600000", makeBars(80, now.AddDate(0, 0, -10), 10, 1e8))
	assert.False(t, ok, "长期停牌")

	for _, code := range []string{"sh.688001", "bj.430047", "sz.830799", "sz.430001"} {
		_, ok = s.Evaluate(code, makeBars(80, now, 10, 1e8))
		assert.False(t, ok, code)
	}
}

func TestAvgAmountUsesTrailingWindow(t *testing.T) {
	bars := makeBars(30, time.Now(), 10, 1)
	for i := 10; i < 30; i++ {
		bars[i].Amount = 5
	}
	assert.Equal(t, 5.0, AvgAmount(bars, 20))
	assert.Equal(t, 1.0, AvgAmount(bars[:5], 20))
}

func TestRankIsStableAndTruncated(t *testing.T) {
	c := []model.PoolEntry{
		{Code: "a", AvgAmount: 1}, {Code: "b", AvgAmount: 3}, {Code: "c", AvgAmount: 3}, {Code: "d", AvgAmount: 2},
	}
	got := Rank(c, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "d"}, []string{got[0].Code, got[1].Code, got[2].Code})
	assert.Equal(t, "a", c[0].Code, "输入不被修改")
}

func TestRunWritesRankedPool(t *testing.T) {
	now := time.Date(2024, 3, 8, 15, 0, 0, 0, time.Local)
	s, cfg := newSelector(t, now)
	cfg.PoolSize = 2

	amounts := map[string]float64{"sh.600000": 3e8, "sh.600001": 1e8, "sz.000001": 2e8, "sh.688001": 9e9}
	for code, amt := range amounts {
		require.NoError(t, barstore.WriteBars(cfg.BarPath(code), makeBars(70, now, 10, amt)))
	}
	require.NoError(t, barstore.WriteNames(cfg.NamesPath(), map[string]string{"sh.600000": "浦发银行"}))

	pool, err := s.Run()
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "sh.600000", pool[0].Code)
	assert.Equal(t, "浦发银行", pool[0].Name)
	assert.Equal(t, "sz.000001", pool[1].Code)
	assert.Equal(t, "sz.000001", pool[1].Name)

	// 排名正确性：入选者流动性不低于任何落选的合格者
	for _, p := range pool {
		assert.GreaterOrEqual(t, p.AvgAmount, amounts["sh.600001"])
	}

	saved, err := barstore.ReadPool(cfg.PoolPath())
	require.NoError(t, err)
	assert.Equal(t, pool, saved)
}

func TestRunWithoutDataIsMissingInput(t *testing.T) {
	s, _ := newSelector(t, time.Now())
	_, err := s.Run()
	assert.True(t, errors.Is(err, config.ErrMissingInput))
}
