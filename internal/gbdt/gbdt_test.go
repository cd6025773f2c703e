package gbdt

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		NEstimators:         60,
		LearningRate:        0.3,
		MaxDepth:            3,
		MinChildWeight:      1,
		Lambda:              1,
		Subsample:           0.8,
		ColsampleByTree:     1,
		ScalePosWeight:      1,
		EarlyStoppingRounds: 20,
		MaxBins:             32,
		Seed:                42,
	}
}

func synthetic(n int, seed int64) Dataset {
	rnd := rand.New(rand.NewSource(seed))
	ds := Dataset{}
	for i := 0; i < n; i++ {
		x := []float64{rnd.Float64(), rnd.Float64(), rnd.Float64()}
		y := 0
		if x[0] > 0.5 {
			y = 1
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y)
	}
	return ds
}

func TestFitLearnsSeparableSignal(t *testing.T) {
	train := synthetic(600, 1)
	valid := synthetic(200, 2)
	m, report, err := Fit(train, &valid, testParams())
	require.NoError(t, err)
	assert.Greater(t, report.BestAUC, 0.95)
	assert.Len(t, m.Trees, report.BestIteration)

	imp := m.Importance()
	require.Len(t, imp, 3)
	assert.Greater(t, imp[0], imp[1])
	assert.Greater(t, imp[0], imp[2])

	assert.Greater(t, m.PredictProba([]float64{0.9, 0.5, 0.5}), 0.5)
	assert.Less(t, m.PredictProba([]float64{0.1, 0.5, 0.5}), 0.5)
}

func TestFitIsDeterministic(t *testing.T) {
	train := synthetic(300, 3)
	valid := synthetic(100, 4)
	m1, _, err := Fit(train, &valid, testParams())
	require.NoError(t, err)
	m2, _, err := Fit(train, &valid, testParams())
	require.NoError(t, err)
	assert.Equal(t, m1.PredictBatch(valid.X), m2.PredictBatch(valid.X))
}

func TestFitWithoutValidationUsesAllRounds(t *testing.T) {
	p := testParams()
	p.NEstimators = 5
	m, report, err := Fit(synthetic(100, 5), nil, p)
	require.NoError(t, err)
	assert.Len(t, m.Trees, 5)
	assert.Equal(t, 5, report.BestIteration)
}

func TestFitRejectsEmpty(t *testing.T) {
	_, _, err := Fit(Dataset{}, nil, testParams())
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	train := synthetic(200, 6)
	m, _, err := Fit(train, nil, testParams())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "m.json")
	require.NoError(t, m.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.PredictBatch(train.X), loaded.PredictBatch(train.X))
}

func TestAUC(t *testing.T) {
	assert.InDelta(t, 0.75, AUC([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}), 1e-12)
	assert.InDelta(t, 1.0, AUC([]int{0, 1}, []float64{0.2, 0.9}), 1e-12)
	assert.InDelta(t, 0.5, AUC([]int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}), 1e-12)
	assert.Equal(t, 0.5, AUC([]int{1, 1}, []float64{0.2, 0.9}))
}

func TestPrecisionSweep(t *testing.T) {
	labels := []int{1, 0, 1, 0}
	scores := []float64{0.9, 0.7, 0.6, 0.4}
	stats := PrecisionSweep(labels, scores, []float64{0.5, 0.8, 0.95})
	require.Len(t, stats, 3)
	assert.Equal(t, 3, stats[0].Selected)
	assert.Equal(t, 2, stats[0].Hits)
	assert.InDelta(t, 2.0/3, stats[0].Precision, 1e-12)
	assert.Equal(t, 1, stats[1].Selected)
	assert.Equal(t, 1.0, stats[1].Precision)
	assert.Equal(t, 0, stats[2].Selected)
	assert.Equal(t, 0.0, stats[2].Precision)
}

func TestBinnerThresholdsMatchBins(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	b := newBinner(x, 1, 4)
	for _, row := range x {
		bin := int(b.bin(0, row[0]))
		for c, cut := range b.cuts[0] {
			assert.Equal(t, bin <= c, row[0] <= cut)
		}
	}
	assert.Less(t, len(b.cuts[0]), 4)
}
