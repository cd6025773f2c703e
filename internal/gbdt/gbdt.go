// Package gbdt 二分类梯度提升树：logistic 损失、二阶增益、直方图分裂、行列采样与基于验证集 AUC 的早停。
package gbdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Params 训练参数
type Params struct {
	NEstimators         int
	LearningRate        float64
	MaxDepth            int
	MinChildWeight      float64
	Gamma               float64
	Lambda              float64
	Subsample           float64
	ColsampleByTree     float64
	ScalePosWeight      float64
	EarlyStoppingRounds int
	MaxBins             int
	Seed                int64
}

// Dataset 特征矩阵与 0/1 标签
type Dataset struct {
	X [][]float64
	Y []int
}

// FitReport 训练过程摘要
type FitReport struct {
	Rounds        int     `json:"rounds"`
	BestIteration int     `json:"best_iteration"`
	BestAUC       float64 `json:"best_auc"`
}

// Model 训练好的模型
type Model struct {
	NumFeature    int     `json:"num_feature"`
	BaseScore     float64 `json:"base_score"`
	BestIteration int     `json:"best_iteration"`
	Trees         []Tree  `json:"trees"`
}

// Fit 训练模型。valid 非空时每轮计算验证集 AUC，连续 EarlyStoppingRounds 轮没有提升即停止，
// 并截断到最优轮次。
func Fit(train Dataset, valid *Dataset, p Params) (*Model, *FitReport, error) {
	n := len(train.X)
	if n == 0 || n != len(train.Y) {
		return nil, nil, errors.New("训练集为空或标签数量不匹配")
	}
	numFeature := len(train.X[0])
	if numFeature == 0 {
		return nil, nil, errors.New("训练集没有特征列")
	}
	if p.NEstimators <= 0 {
		return nil, nil, fmt.Errorf("n_estimators 必须为正数: %d", p.NEstimators)
	}

	rnd := rand.New(rand.NewSource(p.Seed))
	bn := newBinner(train.X, numFeature, p.MaxBins)
	bins := bn.binMatrix(train.X)

	m := &Model{NumFeature: numFeature}
	margin := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)

	var validMargin []float64
	if valid != nil && len(valid.X) > 0 {
		validMargin = make([]float64, len(valid.X))
	}
	report := &FitReport{BestAUC: math.Inf(-1)}
	sinceBest := 0

	for round := 0; round < p.NEstimators; round++ {
		for i := 0; i < n; i++ {
			prob := sigmoid(margin[i])
			w := 1.0
			if train.Y[i] == 1 {
				w = p.ScalePosWeight
				if w <= 0 {
					w = 1
				}
			}
			grad[i] = (prob - float64(train.Y[i])) * w
			hess[i] = math.Max(prob*(1-prob), 1e-16) * w
		}

		g := &grower{
			bins:   bins,
			binner: bn,
			grad:   grad,
			hess:   hess,
			cols:   sampleCols(rnd, numFeature, p.ColsampleByTree),
			params: p,
			tree:   &Tree{},
		}
		g.grow(sampleRows(rnd, n, p.Subsample), 0)
		tree := *g.tree
		m.Trees = append(m.Trees, tree)

		for i, x := range train.X {
			margin[i] += tree.predict(x)
		}
		report.Rounds = round + 1

		if validMargin == nil {
			continue
		}
		scores := make([]float64, len(valid.X))
		for i, x := range valid.X {
			validMargin[i] += tree.predict(x)
			scores[i] = sigmoid(validMargin[i])
		}
		auc := AUC(valid.Y, scores)
		if auc > report.BestAUC {
			report.BestAUC = auc
			report.BestIteration = round + 1
			sinceBest = 0
		} else {
			sinceBest++
		}
		if (round+1)%50 == 0 {
			log.Debug().Int("round", round+1).Float64("valid_auc", auc).Msg("训练进度")
		}
		if p.EarlyStoppingRounds > 0 && sinceBest >= p.EarlyStoppingRounds {
			log.Info().Int("round", round+1).Int("best_iteration", report.BestIteration).
				Float64("best_auc", report.BestAUC).Msg("验证集 AUC 不再提升，提前停止")
			break
		}
	}

	if validMargin != nil {
		m.Trees = m.Trees[:report.BestIteration]
	} else {
		report.BestIteration = len(m.Trees)
		report.BestAUC = math.NaN()
	}
	m.BestIteration = report.BestIteration
	return m, report, nil
}

// PredictProba 单样本正类概率
func (m *Model) PredictProba(x []float64) float64 {
	margin := m.BaseScore
	for i := range m.Trees {
		margin += m.Trees[i].predict(x)
	}
	return sigmoid(margin)
}

// PredictBatch 批量预测
func (m *Model) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.PredictProba(row)
	}
	return out
}

// Importance 各特征作为分裂点的增益总和
func (m *Model) Importance() []float64 {
	out := make([]float64, m.NumFeature)
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf && n.Feature < len(out) {
				out[n.Feature] += n.Gain
			}
		}
	}
	return out
}

// Save 以 JSON 写入模型，先写临时文件再 rename
func (m *Model) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Load 读取模型
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析模型文件失败: %w", err)
	}
	if m.NumFeature <= 0 {
		return nil, fmt.Errorf("模型文件缺少特征数量: %s", path)
	}
	for ti, t := range m.Trees {
		for _, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature >= m.NumFeature || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("模型文件第 %d 棵树结构损坏", ti)
			}
		}
	}
	return &m, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func sampleRows(rnd *rand.Rand, n int, ratio float64) []int {
	rows := make([]int, 0, n)
	if ratio <= 0 || ratio >= 1 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if rnd.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rnd.Intn(n))
	}
	return rows
}

func sampleCols(rnd *rand.Rand, n int, ratio float64) []int {
	perm := rnd.Perm(n)
	if ratio <= 0 || ratio >= 1 {
		return perm
	}
	k := int(math.Round(float64(n) * ratio))
	if k < 1 {
		k = 1
	}
	return perm[:k]
}
