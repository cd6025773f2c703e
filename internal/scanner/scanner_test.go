package scanner

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// fixedScorer 按收盘价查表返回概率
type fixedScorer map[float64]float64

func (f fixedScorer) Score(values []float64) (float64, error) {
	return f[values[features.ColClose]], nil
}

var scanDay = time.Date(2024, 3, 8, 18, 0, 0, 0, time.Local)

// writeStock 写入 n 根围绕 level 小幅波动的K线，最后一根收盘价恰为 level
func writeStock(t *testing.T, cfg *config.Config, code string, n int, level float64, mutate func(*model.Bar)) {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := level * (1 + 0.01*math.Sin(float64(i)/3))
		if i == n-1 {
			c = level
		}
		bars[i] = model.Bar{
			Date:   scanDay.AddDate(0, 0, i-n+1).Format("2006-01-02"),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000 + float64(i%3)*10,
		}
	}
	if mutate != nil {
		mutate(&bars[n-1])
	}
	require.NoError(t, barstore.WriteBars(cfg.BarPath(code), bars))
}

func setup(t *testing.T, probs fixedScorer) (*Scanner, *config.Config) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	s := New(cfg, probs)
	s.now = func() time.Time { return scanDay }
	return s, cfg
}

func writePool(t *testing.T, cfg *config.Config, codes ...string) {
	var pool []model.PoolEntry
	for _, c := range codes {
		pool = append(pool, model.PoolEntry{Code: c, Name: c})
	}
	require.NoError(t, barstore.WritePool(cfg.PoolPath(), pool))
}

func TestSelectAboveFloor(t *testing.T) {
	items := []model.BuyListItem{{Code: "a", Probability: 0.4}, {Code: "b", Probability: 0.7}, {Code: "c", Probability: 0.55}, {Code: "d", Probability: 0.9}, {Code: "e", Probability: 0.6}}
	picks, forced := Select(items, 0.5, 3, config.FallbackForce)
	assert.False(t, forced)
	require.Len(t, picks, 3)
	assert.Equal(t, []string{"d", "b", "e"}, []string{picks[0].Code, picks[1].Code, picks[2].Code})
	for _, p := range picks {
		assert.False(t, p.BelowFloor)
	}
}

func TestSelectFallbackPolicies(t *testing.T) {
	items := []model.BuyListItem{{Code: "a", Probability: 0.1}, {Code: "b", Probability: 0.3}, {Code: "c", Probability: 0.2}, {Code: "d", Probability: 0.05}}

	picks, forced := Select(items, 0.5, 3, config.FallbackForce)
	assert.True(t, forced)
	require.Len(t, picks, 3)
	assert.Equal(t, "b", picks[0].Code)
	for _, p := range picks {
		assert.True(t, p.BelowFloor)
	}
	assert.False(t, items[1].BelowFloor, "输入不被修改")

	picks, forced = Select(items[:2], 0.5, 3, config.FallbackForce)
	assert.True(t, forced)
	assert.Len(t, picks, 2)

	picks, forced = Select(items, 0.5, 3, config.FallbackStrict)
	assert.False(t, forced)
	assert.Empty(t, picks)
}

func TestRunFiltersAndWritesBuyList(t *testing.T) {
	s, cfg := setup(t, fixedScorer{11: 0.95, 12: 0.8, 13: 0.7, 14: 0.65, 15: 0.6})
	writeStock(t, cfg, "sh.600001", 60, 11, nil)
	writeStock(t, cfg, "sh.600002", 60, 12, nil)
	writeStock(t, cfg, "sh.600003", 60, 13, nil)
	writeStock(t, cfg, "sh.600004", 60, 14, func(b *model.Bar) { b.Volume = 0 })
	writeStock(t, cfg, "sh.600005", 60, 15, nil)
	writeStock(t, cfg, "sh.600006", 20, 11, nil)
	writePool(t, cfg, "sh.600001", "sh.600002", "sh.600003", "sh.600004", "sh.600005", "sh.600006")
	require.NoError(t, barstore.WriteNames(cfg.NamesPath(), map[string]string{"sh.600001": "*ST 高分", "sh.600003": "退市股份"}))

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 1, res.Rejected["ST股"])
	assert.Equal(t, 1, res.Rejected["退市股"])
	assert.Equal(t, 1, res.Rejected["停牌"])
	assert.False(t, res.Forced)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "sh.600002", res.Items[0].Code)
	assert.Equal(t, "sh.600005", res.Items[1].Code)

	saved, err := barstore.ReadBuyList(cfg.BuyListPath("2024-03-08"))
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "2024-03-08", saved[0].Date)
	assert.InDelta(t, 0.8, saved[0].Probability, 1e-9)
	assert.Greater(t, saved[0].BBWidth, 0.0)
}

func TestRunRejectsLimitMove(t *testing.T) {
	s, cfg := setup(t, fixedScorer{20: 0.99, 12: 0.6})
	// 最后一天收盘价翻倍，涨幅远超 9.5%
	writeStock(t, cfg, "sh.600001", 60, 10, func(b *model.Bar) {
		b.Close = 20
		b.High = 20
	})
	writeStock(t, cfg, "sh.600002", 60, 12, nil)
	writePool(t, cfg, "sh.600001", "sh.600002")

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected["已涨停"])
	require.Len(t, res.Items, 1)
	assert.Equal(t, "sh.600002", res.Items[0].Code)
}

func TestRunForcedOutputWhenNoneAboveFloor(t *testing.T) {
	s, cfg := setup(t, fixedScorer{11: 0.2, 12: 0.3, 13: 0.1, 14: 0.4})
	for i, c := range []string{"sz.000001", "sz.000002", "sz.000003", "sz.000004"} {
		writeStock(t, cfg, c, 40, float64(11+i), nil)
	}
	writePool(t, cfg, "sz.000001", "sz.000002", "sz.000003", "sz.000004")

	res, err := s.Run()
	require.NoError(t, err)
	assert.True(t, res.Forced)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "sz.000004", res.Items[0].Code)
	for _, it := range res.Items {
		assert.True(t, it.BelowFloor)
	}
}

func TestRunStaleDataIsOnlyWarning(t *testing.T) {
	s, cfg := setup(t, fixedScorer{12: 0.7})
	writeStock(t, cfg, "sh.600002", 60, 12, nil)
	writePool(t, cfg, "sh.600002")
	s.now = func() time.Time { return scanDay.AddDate(0, 0, 10) }

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)
	assert.Len(t, res.Items, 1)
}

func TestRunWithoutModelOrPool(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	_, err := New(cfg, nil).Run()
	assert.True(t, errors.Is(err, config.ErrMissingInput))

	s, _ := setup(t, fixedScorer{})
	_, err = s.Run()
	assert.True(t, errors.Is(err, config.ErrMissingInput))
}

func TestStale(t *testing.T) {
	now := time.Date(2024, 3, 8, 9, 0, 0, 0, time.Local)
	assert.False(t, stale("2024-03-05", now, 3))
	assert.True(t, stale("2024-03-04", now, 3))
	assert.True(t, stale("bad", now, 3))
}
