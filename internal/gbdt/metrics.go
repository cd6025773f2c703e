package gbdt

import "sort"

// AUC ROC 曲线下面积，并列分数取平均秩。只有一类样本时返回 0.5。
func AUC(labels []int, scores []float64) float64 {
	n := len(labels)
	if n == 0 || n != len(scores) {
		return 0.5
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var rankSumPos float64
	pos := 0
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] == 1 {
				rankSumPos += avgRank
				pos++
			}
		}
		i = j + 1
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (rankSumPos - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}

// ThresholdStat 某一概率阈值下的选股数量与命中率
type ThresholdStat struct {
	Threshold float64 `json:"threshold"`
	Selected  int     `json:"selected"`
	Hits      int     `json:"hits"`
	Precision float64 `json:"precision"`
}

// PrecisionAt 概率 >= threshold 的样本中正样本比例
func PrecisionAt(labels []int, scores []float64, threshold float64) ThresholdStat {
	s := ThresholdStat{Threshold: threshold}
	for i, p := range scores {
		if p >= threshold {
			s.Selected++
			if labels[i] == 1 {
				s.Hits++
			}
		}
	}
	if s.Selected > 0 {
		s.Precision = float64(s.Hits) / float64(s.Selected)
	}
	return s
}

// PrecisionSweep 依次计算多个阈值
func PrecisionSweep(labels []int, scores []float64, thresholds []float64) []ThresholdStat {
	out := make([]ThresholdStat, 0, len(thresholds))
	for _, t := range thresholds {
		out = append(out, PrecisionAt(labels, scores, t))
	}
	return out
}
