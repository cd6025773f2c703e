package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhen-x/Quant-A-Share/internal/model"
)

func wavyBars(n int) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := 10 + math.Sin(float64(i)/3) + float64(i)*0.01
		bars[i] = model.Bar{
			Date:   start.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   c - 0.1,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000 + float64(i%7)*100,
		}
	}
	return bars
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

func TestComputeHasNoLookAhead(t *testing.T) {
	bars := wavyBars(120)
	full := Compute(bars)
	prefix := Compute(bars[:60])
	require.Len(t, prefix, 60)
	for i := range prefix {
		assert.Equal(t, full[i].Date, prefix[i].Date)
		assert.Equal(t, full[i].Valid, prefix[i].Valid)
		for c := range Names {
			assert.Truef(t, sameFloat(full[i].Values[c], prefix[i].Values[c]), "第 %d 行 %s 不一致", i, Names[c])
		}
	}
}

func TestComputeWarmUp(t *testing.T) {
	points := Compute(wavyBars(60))
	for i := 0; i < 20; i++ {
		assert.Falsef(t, points[i].Valid, "第 %d 行应处于预热期", i)
	}
	for i := 20; i < 60; i++ {
		assert.Truef(t, points[i].Valid, "第 %d 行应有效", i)
	}
}

func TestComputeEmpty(t *testing.T) {
	assert.Nil(t, Compute(nil))
	_, ok := Latest(nil)
	assert.False(t, ok)
}

func TestLatestMatchesLastPoint(t *testing.T) {
	bars := wavyBars(40)
	p, ok := Latest(bars)
	require.True(t, ok)
	assert.Equal(t, bars[39].Date, p.Date)
	assert.Equal(t, p.Values[ColClose], p.Map()["close"])
	assert.Len(t, p.Map(), len(Names))
}

func TestPctChgRecomputedFromCloses(t *testing.T) {
	bars := wavyBars(3)
	bars[0].PctChg = 1.23
	points := Compute(bars)
	assert.Equal(t, 1.23, points[0].PctChg)
	assert.InDelta(t, (bars[1].Close/bars[0].Close-1)*100, points[1].PctChg, 1e-12)
}

func TestRSIOnRisingSeries(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	out := rsi(closes, 6)
	for i := 0; i < 6; i++ {
		assert.True(t, math.IsNaN(out[i]), i)
	}
	for i := 6; i < len(out); i++ {
		assert.InDelta(t, 100.0, out[i], 1e-9)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5, 5}
	dif, dea, hist := macd(closes, 12, 26, 9)
	for i := range closes {
		assert.Equal(t, 0.0, dif[i])
		assert.Equal(t, 0.0, dea[i])
		assert.Equal(t, 0.0, hist[i])
	}
}

func TestKDJZeroRangeUsesZeroRSV(t *testing.T) {
	px := []float64{3, 3, 3, 3}
	k, d, j := kdj(px, px, px, 9, 3, 3)
	for i := range px {
		assert.Equal(t, 0.0, k[i])
		assert.Equal(t, 0.0, d[i])
		assert.Equal(t, 0.0, j[i])
	}
}

func TestRollingHelpers(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	m := rollingMean(x, 2)
	assert.True(t, math.IsNaN(m[0]))
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, m[1:])

	s := rollingStd(x, 2)
	assert.InDelta(t, math.Sqrt(0.5), s[1], 1e-12)

	assert.Equal(t, []float64{1, 1, 2, 3}, rollingMin(x, 2))
	assert.Equal(t, []float64{1, 2, 3, 4}, rollingMax(x, 2))

	p := pctChange(x, 1)
	assert.True(t, math.IsNaN(p[0]))
	assert.InDelta(t, 1.0, p[1], 1e-12)

	e := ewmAdjusted([]float64{1, 2}, 0.5, 1)
	assert.InDelta(t, 1.0, e[0], 1e-12)
	assert.InDelta(t, 2.5/1.5, e[1], 1e-12)

	r := ewmRecursive([]float64{1, 2}, 0.5)
	assert.Equal(t, []float64{1, 1.5}, r)
}

func TestBuildLabelsAndDropsTail(t *testing.T) {
	bars := wavyBars(40)
	rows := Build("sh.600000", bars, 5, 0.01)
	require.Len(t, rows, 15)
	assert.Equal(t, bars[20].Date, rows[0].Date)
	assert.Equal(t, bars[34].Date, rows[len(rows)-1].Date)
	for i, r := range rows {
		idx := 20 + i
		fwd := bars[idx+5].Close/bars[idx].Close - 1
		assert.InDelta(t, fwd, r.ForwardReturn, 1e-12)
		assert.Equal(t, fwd > 0.01, r.Target == 1)
		assert.Len(t, r.Features, len(Names))
		if i > 0 {
			assert.Greater(t, r.Date, rows[i-1].Date)
		}
	}
}

func TestForwardReturns(t *testing.T) {
	bars := []model.Bar{
		{Date: "2024-01-02", Close: 10},
		{Date: "2024-01-03", Close: 11},
		{Date: "2024-01-04", Close: 12},
		{Date: "2024-01-05", Close: 13},
	}
	got := ForwardReturns(bars, 2)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.2, got["2024-01-02"], 1e-12)
	assert.InDelta(t, 13.0/11-1, got["2024-01-03"], 1e-12)
}

// goldenBars 40 根有涨有跌的日线，参考值按 pandas 的约定计算：
// rolling 满窗口（std 分母 n-1），RSI 为 ewm(alpha=1/n, adjust=True, min_periods=n)，
// MACD 与 KDJ 为 ewm(adjust=False)，KDJ 的高低点窗口 min_periods=1。
func goldenBars() []model.Bar {
	closes := []float64{
		10.12, 10.04, 10.19, 9.98, 10.03, 10.36, 10.24, 10.17, 10.35, 10.1,
		10.19, 10.33, 10.02, 10.24, 10.28, 10.22, 10.49, 10.34, 10.45, 10.36,
		10.55, 10.27, 10.33, 10.46, 10.42, 10.25, 10.49, 10.57, 10.44, 10.6,
		10.38, 10.41, 10.7, 10.59, 10.54, 10.75, 10.57, 10.64, 10.76, 10.5,
	}
	highs := []float64{
		10.17, 10.1, 10.26, 10.06, 10.08, 10.42, 10.31, 10.25, 10.4, 10.16,
		10.26, 10.41, 10.07, 10.3, 10.35, 10.3, 10.54, 10.4, 10.52, 10.44,
		10.6, 10.33, 10.4, 10.54, 10.47, 10.31, 10.56, 10.65, 10.49, 10.66,
		10.45, 10.49, 10.75, 10.65, 10.61, 10.83, 10.62, 10.7, 10.83, 10.58,
	}
	lows := []float64{
		10.08, 9.99, 10.13, 9.94, 9.98, 10.3, 10.2, 10.12, 10.29, 10.06,
		10.14, 10.27, 9.98, 10.19, 10.22, 10.18, 10.44, 10.28, 10.41, 10.31,
		10.49, 10.23, 10.28, 10.4, 10.38, 10.2, 10.43, 10.53, 10.39, 10.54,
		10.34, 10.36, 10.64, 10.55, 10.49, 10.69, 10.53, 10.59, 10.7, 10.46,
	}
	volumes := []float64{
		1000, 1259, 1111, 1370, 1222, 1074, 1333, 1185, 1037, 1296,
		1148, 1000, 1259, 1111, 1370, 1222, 1074, 1333, 1185, 1037,
		1296, 1148, 1000, 1259, 1111, 1370, 1222, 1074, 1333, 1185,
		1037, 1296, 1148, 1000, 1259, 1111, 1370, 1222, 1074, 1333,
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i := range closes {
		bars[i] = model.Bar{
			Date:   start.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   closes[i],
			High:   highs[i],
			Low:    lows[i],
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	return bars
}

func TestComputeMatchesReferenceValues(t *testing.T) {
	points := Compute(goldenBars())
	require.Len(t, points, 40)

	cases := []struct {
		col  int
		idx  int
		want float64
	}{
		{ColROC5, 4, math.NaN()},
		{ColROC5, 5, 0.02371541501976293},
		{ColROC5, 17, 0.031936127744510934},
		{ColROC5, 39, -0.003795066413662118},
		{ColROC20, 19, math.NaN()},
		{ColROC20, 20, 0.04249011857707519},
		{ColROC20, 39, 0.013513513513513598},
		{ColBias20, 18, math.NaN()},
		{ColBias20, 19, 0.013202933985330054},
		{ColBias20, 33, 0.01534036433365311},
		{ColRSI6, 5, math.NaN()},
		{ColRSI6, 6, 58.26413703025295},
		{ColRSI6, 13, 53.38619216900693},
		{ColRSI6, 27, 61.77857178768904},
		{ColRSI6, 39, 44.93660876155885},
		{ColRSI12, 11, math.NaN()},
		{ColRSI12, 12, 44.51397979829808},
		{ColRSI12, 30, 50.45717121466019},
		{ColRSI12, 39, 50.0178700147419},
		{ColDIF, 0, 0.0},
		{ColDIF, 1, -0.006381766381766241},
		{ColDIF, 15, 0.02752548690759049},
		{ColDIF, 39, 0.09088057117259751},
		{ColDEA, 1, -0.0012763532763532483},
		{ColDEA, 15, 0.021710328753010974},
		{ColDEA, 39, 0.09065937093279286},
		{ColMACDHist, 2, 0.0015465329015188446},
		{ColMACDHist, 22, 0.007437053186401386},
		{ColMACDHist, 39, 0.0002212002398046531},
		{ColKDJK, 0, 44.44444444444356},
		{ColKDJK, 8, 63.865920676048674},
		{ColKDJK, 9, 53.68839156181023},
		{ColKDJK, 26, 51.26694183848842},
		{ColKDJK, 39, 56.2980695513546},
		{ColKDJD, 1, 42.59259259259175},
		{ColKDJD, 9, 54.17402872567219},
		{ColKDJD, 39, 62.19708412657615},
		{ColKDJJ, 3, 28.10356652949281},
		{ColKDJJ, 20, 92.46162836393222},
		{ColKDJJ, 39, 44.50004040091149},
		{ColBBWidth, 18, math.NaN()},
		{ColBBWidth, 19, 0.05726251589839006},
		{ColBBWidth, 29, 0.056447428142298375},
		{ColBBWidth, 39, 0.0550630959891354},
		{ColBBZScore, 19, 0.9222741109564994},
		{ColBBZScore, 35, 2.1052550335485845},
		{ColBBZScore, 39, -0.07602352695323318},
		{ColVolRatio, 3, math.NaN()},
		{ColVolRatio, 4, 1.0248238846024824},
		{ColVolRatio, 21, 0.956826137689615},
		{ColVolRatio, 39, 1.090834697217676},
	}
	for _, tc := range cases {
		got := points[tc.idx].Values[tc.col]
		if math.IsNaN(tc.want) {
			assert.True(t, math.IsNaN(got), "%s[%d] 应为 NaN，实际 %v", Names[tc.col], tc.idx, got)
			continue
		}
		assert.InDelta(t, tc.want, got, 1e-9, "%s[%d]", Names[tc.col], tc.idx)
	}

	// 预热期：最长窗口为 20，之前的行都不完整
	assert.False(t, points[19].Valid)
	assert.True(t, points[20].Valid)
}
