// Package trainer 按时间顺序切分数据集，训练梯度提升树并保存模型与特征列顺序。
package trainer

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/gbdt"
	"github.com/enhen-x/Quant-A-Share/internal/metrics"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// Thresholds 命中率统计的概率阈值
var Thresholds = []float64{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80}

// FeatureImportance 单个特征的分裂增益
type FeatureImportance struct {
	Name string  `json:"name"`
	Gain float64 `json:"gain"`
}

// Report 训练结果
type Report struct {
	TrainRows     int                  `json:"train_rows"`
	ValidRows     int                  `json:"valid_rows"`
	TrainEnd      string               `json:"train_end"`
	ValidStart    string               `json:"valid_start"`
	TrainPositive float64              `json:"train_positive"`
	AUC           float64              `json:"auc"`
	BestIteration int                  `json:"best_iteration"`
	Thresholds    []gbdt.ThresholdStat `json:"thresholds"`
	Importance    []FeatureImportance  `json:"importance"`
}

// Trainer 模型训练器
type Trainer struct {
	cfg *config.Config
}

// New 创建训练器
func New(cfg *config.Config) *Trainer {
	return &Trainer{cfg: cfg}
}

// Split 按日期稳定排序后取前 ratio 行为训练集，其余为验证集
func Split(rows []model.FeatureRow, ratio float64) (train, valid []model.FeatureRow) {
	sorted := make([]model.FeatureRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })
	cut := int(float64(len(sorted)) * ratio)
	return sorted[:cut], sorted[cut:]
}

// Params 配置转换为训练参数
func Params(c config.ModelConfig) gbdt.Params {
	return gbdt.Params{
		NEstimators:         c.NEstimators,
		LearningRate:        c.LearningRate,
		MaxDepth:            c.MaxDepth,
		MinChildWeight:      c.MinChildWeight,
		Gamma:               c.Gamma,
		Lambda:              c.Lambda,
		Subsample:           c.Subsample,
		ColsampleByTree:     c.ColsampleByTree,
		ScalePosWeight:      c.ScalePosWeight,
		EarlyStoppingRounds: c.EarlyStoppingRounds,
		MaxBins:             c.MaxBins,
		Seed:                c.Seed,
	}
}

// Run 读取数据集，训练并保存模型与特征列表
func (t *Trainer) Run() (*Report, error) {
	rows, err := dataset.Read(t.cfg.DatasetPath())
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}
	train, valid := Split(rows, t.cfg.TrainRatio)
	if len(train) == 0 || len(valid) == 0 {
		return nil, fmt.Errorf("%w: 样本不足，训练集 %d 行，验证集 %d 行", config.ErrMissingInput, len(train), len(valid))
	}

	log.Info().Int("train", len(train)).Int("valid", len(valid)).
		Str("train_end", train[len(train)-1].Date).Str("valid_start", valid[0].Date).
		Msg("开始训练")

	trainSet, validSet := toDataset(train), toDataset(valid)
	m, fit, err := gbdt.Fit(trainSet, &validSet, Params(t.cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("训练失败: %w", err)
	}

	scores := m.PredictBatch(validSet.X)
	report := &Report{
		TrainRows:     len(train),
		ValidRows:     len(valid),
		TrainEnd:      train[len(train)-1].Date,
		ValidStart:    valid[0].Date,
		TrainPositive: dataset.PositiveRatio(train),
		AUC:           gbdt.AUC(validSet.Y, scores),
		BestIteration: fit.BestIteration,
		Thresholds:    gbdt.PrecisionSweep(validSet.Y, scores, Thresholds),
	}
	for i, gain := range m.Importance() {
		report.Importance = append(report.Importance, FeatureImportance{Name: features.Names[i], Gain: gain})
	}
	sort.SliceStable(report.Importance, func(i, j int) bool { return report.Importance[i].Gain > report.Importance[j].Gain })

	if err := m.Save(t.cfg.ModelPath()); err != nil {
		return nil, fmt.Errorf("保存模型失败: %w", err)
	}
	if err := saveFeatureNames(t.cfg.FeatureNamesPath(), features.Names); err != nil {
		return nil, fmt.Errorf("保存特征列表失败: %w", err)
	}

	metrics.ModelAUC.Set(report.AUC)
	log.Info().Float64("auc", report.AUC).Int("best_iteration", report.BestIteration).
		Str("model", t.cfg.ModelPath()).Msg("训练完成")
	for _, s := range report.Thresholds {
		log.Info().Float64("threshold", s.Threshold).Int("selected", s.Selected).
			Float64("precision", s.Precision).Msg("阈值命中率")
	}
	return report, nil
}

func toDataset(rows []model.FeatureRow) gbdt.Dataset {
	ds := gbdt.Dataset{X: make([][]float64, len(rows)), Y: make([]int, len(rows))}
	for i, r := range rows {
		ds.X[i] = r.Features
		ds.Y[i] = r.Target
	}
	return ds
}
