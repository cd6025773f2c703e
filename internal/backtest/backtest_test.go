package backtest

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhen-x/Quant-A-Share/internal/barstore"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// closeScorer 把收盘价列当作概率，便于构造排名
type closeScorer struct{}

func (closeScorer) ScoreRows(rows []model.FeatureRow) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Features[features.ColClose]
	}
	return out, nil
}

type instrument struct {
	code string
	prob float64
	fwd  float64
}

func dateAt(d int) string {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d).Format("2006-01-02")
}

func makeRows(days int, insts []instrument, pct func(code string, day int) float64) []model.FeatureRow {
	var rows []model.FeatureRow
	for d := 0; d < days; d++ {
		for _, in := range insts {
			f := make([]float64, len(features.Names))
			f[features.ColClose] = in.prob
			rows = append(rows, model.FeatureRow{
				Code:          in.code,
				Date:          dateAt(d),
				Close:         in.prob,
				PctChg:        pct(in.code, d),
				Features:      f,
				ForwardReturn: in.fwd,
			})
		}
	}
	return rows
}

func scoredBook(t *testing.T, rows []model.FeatureRow) *Book {
	scored, err := Score(closeScorer{}, rows)
	require.NoError(t, err)
	return NewBook(scored)
}

func noPct(string, int) float64 { return 0 }

var threeInstruments = []instrument{
	{code: "sh.600001", prob: 0.9, fwd: 0.02},
	{code: "sh.600002", prob: 0.6, fwd: 0.01},
	{code: "sz.000003", prob: 0.3, fwd: -0.01},
}

func TestRebalanceDates(t *testing.T) {
	dates := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, []string{"a", "f"}, RebalanceDates(dates, 5))
	assert.Equal(t, []string{"a", "c", "e", "g"}, RebalanceDates(dates, 2))
	assert.Nil(t, RebalanceDates(nil, 5))
}

func TestLimitBreachExcludedEvenIfTopRanked(t *testing.T) {
	cfg := config.Default()
	rows := makeRows(100, threeInstruments, func(code string, day int) float64 {
		if code == "sh.600001" && day == 90 {
			return 100
		}
		return 0
	})
	book := scoredBook(t, rows)
	dates := RebalanceDates(book.Dates, cfg.RebalanceEvery)
	require.Contains(t, dates, dateAt(90))

	report := newSimulator(cfg, map[string]string{}).run(book, dates)
	assert.Equal(t, 1, report.Rejected)
	for _, p := range report.Curve {
		codes := map[string]bool{}
		for _, pk := range p.Picks {
			codes[pk.Code] = true
		}
		if p.Date == dateAt(90) {
			assert.False(t, codes["sh.600001"])
			assert.Len(t, p.Picks, 2)
			assert.InDelta(t, 0.0, p.StrategyReturn, 1e-12)
		} else if p.Date != dates[0] {
			assert.True(t, codes["sh.600001"])
		}
	}
}

func TestSTNeverPicked(t *testing.T) {
	cfg := config.Default()
	cfg.TopK = 1
	names := map[string]string{"sh.600001": "*ST 高分", "sh.600002": "正常"}
	book := scoredBook(t, makeRows(30, threeInstruments, noPct))
	report := newSimulator(cfg, names).run(book, RebalanceDates(book.Dates, 5))
	require.NotEmpty(t, report.Curve)
	for _, p := range report.Curve[1:] {
		require.Len(t, p.Picks, 1)
		assert.Equal(t, "sh.600002", p.Picks[0].Code)
	}
	assert.Equal(t, len(report.Curve)-1, report.Rejected)
}

func TestCompoundingAndBenchmark(t *testing.T) {
	cfg := config.Default()
	cfg.TopK = 1
	book := scoredBook(t, makeRows(11, threeInstruments, noPct))
	dates := RebalanceDates(book.Dates, 5)
	require.Len(t, dates, 3)

	report := newSimulator(cfg, nil).run(book, dates)
	assert.Equal(t, 2, report.Periods)
	assert.InDelta(t, 1.02*1.02, report.StrategyCapital, 1e-12)
	bench := (0.02 + 0.01 - 0.01) / 3
	assert.InDelta(t, (1+bench)*(1+bench), report.BenchmarkCapital, 1e-12)
	assert.InDelta(t, report.StrategyReturn-report.BenchmarkReturn, report.Alpha, 1e-12)
	assert.Equal(t, 1.0, report.Curve[0].StrategyCapital)
}

func TestEmptyPeriodIsLegal(t *testing.T) {
	cfg := config.Default()
	names := map[string]string{"sh.600001": "ST一", "sh.600002": "ST二", "sz.000003": "退市三"}
	book := scoredBook(t, makeRows(6, threeInstruments, noPct))
	report := newSimulator(cfg, names).run(book, RebalanceDates(book.Dates, 5))
	assert.Equal(t, 1, report.EmptyPeriods)
	assert.Equal(t, 1.0, report.StrategyCapital)
	assert.Less(t, report.BenchmarkCapital, 1.01)
}

func TestFeesReduceReturn(t *testing.T) {
	cfg := config.Default()
	book := scoredBook(t, makeRows(6, threeInstruments, noPct))
	dates := RebalanceDates(book.Dates, 5)
	gross := newSimulator(cfg, nil).run(book, dates)
	cfg.Fees.Enabled = true
	net := newSimulator(cfg, nil).run(book, dates)
	assert.Less(t, net.StrategyCapital, gross.StrategyCapital)
	assert.Greater(t, net.Curve[1].FeeDrag, 0.0)
	assert.Equal(t, gross.BenchmarkCapital, net.BenchmarkCapital)
}

func newBacktester(t *testing.T, rows []model.FeatureRow) (*Backtester, *config.Config) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	require.NoError(t, dataset.Write(cfg.DatasetPath(), rows))
	return New(cfg, closeScorer{}), cfg
}

func TestRunIsDeterministicAndWritesCurve(t *testing.T) {
	b, cfg := newBacktester(t, makeRows(200, threeInstruments, noPct))
	first, err := b.Run()
	require.NoError(t, err)
	second, err := b.Run()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, dateAt(180), first.StartDate)

	_, err = os.Stat(cfg.CurvePath())
	assert.NoError(t, err)
}

func TestRunWithoutModel(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	require.NoError(t, dataset.Write(cfg.DatasetPath(), makeRows(10, threeInstruments, noPct)))
	_, err := New(cfg, nil).Run()
	assert.True(t, errors.Is(err, config.ErrMissingInput))
}

func TestRunRandomDeterministicGivenSeed(t *testing.T) {
	insts := []instrument{
		{code: "sh.600001", prob: 0.9, fwd: 0.01},
		{code: "sh.600002", prob: 0.5, fwd: -0.01},
	}
	b, cfg := newBacktester(t, makeRows(400, insts, noPct))
	cfg.TopK = 1

	r1, err := b.RunRandom(5, 20, 42)
	require.NoError(t, err)
	r2, err := b.RunRandom(5, 20, 42)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	require.Len(t, r1.Trials, 5)
	assert.Equal(t, 1.0, r1.WinRateAbsolute)
	assert.Equal(t, 1.0, r1.WinRateVsBenchmark)
	assert.GreaterOrEqual(t, r1.Best.StrategyReturn, r1.Worst.StrategyReturn)

	_, err = b.RunRandom(5, 100, 42)
	assert.True(t, errors.Is(err, config.ErrMissingInput))
}

func TestAuditFlagsLimitUpBody(t *testing.T) {
	insts := []instrument{
		{code: "sh.600001", prob: 0.9, fwd: 0.01},
		{code: "sh.600002", prob: 0.5, fwd: 0.01},
	}
	b, cfg := newBacktester(t, makeRows(20, insts, noPct))
	cfg.TrainRatio = 0.5
	cfg.TopK = 1

	var bars []model.Bar
	for d := 0; d < 20; d++ {
		bar := model.Bar{Date: dateAt(d), Open: 10, High: 10, Low: 10, Close: 10}
		if d == 10 {
			bar.Close = 11
		}
		bars = append(bars, bar)
	}
	require.NoError(t, barstore.WriteBars(cfg.BarPath("sh.600001"), bars))

	records, err := b.Audit()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, dateAt(10), records[0].Date)
	assert.Equal(t, "sh.600001", records[0].Code)
	assert.True(t, records[0].LimitUpBody)
	assert.Equal(t, 10.0, records[0].Open)
	assert.False(t, records[1].LimitUpBody)
	assert.Empty(t, records[1].Flags)
}
