package trainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/gbdt"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// ErrFeatureMismatch 模型的特征列与当前特征引擎不一致
var ErrFeatureMismatch = errors.New("feature mismatch")

// Scorer 按训练时的特征列顺序打分
type Scorer struct {
	model *gbdt.Model
	names []string
	index []int
}

// NewScorer 校验模型与特征列表并建立列映射
func NewScorer(m *gbdt.Model, names []string) (*Scorer, error) {
	if len(names) != m.NumFeature {
		return nil, fmt.Errorf("%w: 模型有 %d 列，特征列表有 %d 列", ErrFeatureMismatch, m.NumFeature, len(names))
	}
	pos := make(map[string]int, len(features.Names))
	for i, n := range features.Names {
		pos[n] = i
	}
	index := make([]int, len(names))
	for i, n := range names {
		p, ok := pos[n]
		if !ok {
			return nil, fmt.Errorf("%w: 未知特征 %q", ErrFeatureMismatch, n)
		}
		index[i] = p
	}
	return &Scorer{model: m, names: names, index: index}, nil
}

// LoadScorer 同时加载模型与特征列表，缺一不可
func LoadScorer(cfg *config.Config) (*Scorer, error) {
	if err := config.RequireFile(cfg.ModelPath()); err != nil {
		return nil, err
	}
	if err := config.RequireFile(cfg.FeatureNamesPath()); err != nil {
		return nil, err
	}
	m, err := gbdt.Load(cfg.ModelPath())
	if err != nil {
		return nil, fmt.Errorf("加载模型失败: %w", err)
	}
	names, err := loadFeatureNames(cfg.FeatureNamesPath())
	if err != nil {
		return nil, fmt.Errorf("加载特征列表失败: %w", err)
	}
	return NewScorer(m, names)
}

// FeatureNames 训练时的特征列顺序
func (s *Scorer) FeatureNames() []string { return s.names }

// Score 对特征引擎输出的一行打分
func (s *Scorer) Score(values []float64) (float64, error) {
	if len(values) != len(features.Names) {
		return 0, fmt.Errorf("%w: 输入 %d 列，期望 %d 列", ErrFeatureMismatch, len(values), len(features.Names))
	}
	x := make([]float64, len(s.index))
	for i, p := range s.index {
		x[i] = values[p]
	}
	return s.model.PredictProba(x), nil
}

// ScoreRows 批量打分
func (s *Scorer) ScoreRows(rows []model.FeatureRow) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		p, err := s.Score(r.Features)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.Code, r.Date, err)
		}
		out[i] = p
	}
	return out, nil
}

func saveFeatureNames(path string, names []string) error {
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadFeatureNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: 特征列表为空", ErrFeatureMismatch)
	}
	return names, nil
}
