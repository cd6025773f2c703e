package gbdt

import (
	"math"
	"sort"
)

// Node 树节点。非叶子节点按 x[Feature] <= Threshold 走左子树，缺失值走左子树。
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Gain      float64 `json:"g,omitempty"`
}

// Tree 一棵回归树，Nodes[0] 为根
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		if math.IsNaN(v) || v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// binner 按分位数把连续特征离散成至多 maxBins 个桶
type binner struct {
	cuts [][]float64
}

func newBinner(x [][]float64, numFeature, maxBins int) *binner {
	if maxBins < 2 {
		maxBins = 2
	}
	if maxBins > 256 {
		maxBins = 256
	}
	b := &binner{cuts: make([][]float64, numFeature)}
	vals := make([]float64, 0, len(x))
	for f := 0; f < numFeature; f++ {
		vals = vals[:0]
		for _, row := range x {
			if v := row[f]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		sort.Float64s(vals)
		var cuts []float64
		for k := 1; k < maxBins && len(vals) > 0; k++ {
			c := vals[k*len(vals)/maxBins]
			if len(cuts) == 0 || c > cuts[len(cuts)-1] {
				cuts = append(cuts, c)
			}
		}
		// 最大值不作为切分点
		if len(cuts) > 0 && len(vals) > 0 && cuts[len(cuts)-1] >= vals[len(vals)-1] {
			cuts = cuts[:len(cuts)-1]
		}
		b.cuts[f] = cuts
	}
	return b
}

// bin 第一个 >= v 的切分点下标；超过所有切分点时为 len(cuts)
func (b *binner) bin(f int, v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(sort.SearchFloat64s(b.cuts[f], v))
}

func (b *binner) numBins(f int) int { return len(b.cuts[f]) + 1 }

// binMatrix 列存的桶编号
func (b *binner) binMatrix(x [][]float64) [][]uint8 {
	out := make([][]uint8, len(b.cuts))
	for f := range b.cuts {
		col := make([]uint8, len(x))
		for i, row := range x {
			col[i] = b.bin(f, row[f])
		}
		out[f] = col
	}
	return out
}

// grower 基于直方图逐层分裂，增益公式同二阶近似的提升树
type grower struct {
	bins   [][]uint8
	binner *binner
	grad   []float64
	hess   []float64
	cols   []int
	params Params
	tree   *Tree
}

func (g *grower) leafValue(sumG, sumH float64) float64 {
	return -sumG / (sumH + g.params.Lambda) * g.params.LearningRate
}

func (g *grower) grow(rows []int, depth int) int {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += g.grad[r]
		sumH += g.hess[r]
	}
	idx := len(g.tree.Nodes)
	g.tree.Nodes = append(g.tree.Nodes, Node{Leaf: true, Value: g.leafValue(sumG, sumH)})

	if depth >= g.params.MaxDepth || len(rows) < 2 || sumH < 2*g.params.MinChildWeight {
		return idx
	}

	lambda := g.params.Lambda
	parent := sumG * sumG / (sumH + lambda)
	bestGain := 0.0
	bestFeature, bestBin := -1, 0

	for _, f := range g.cols {
		nb := g.binner.numBins(f)
		if nb < 2 {
			continue
		}
		histG := make([]float64, nb)
		histH := make([]float64, nb)
		col := g.bins[f]
		for _, r := range rows {
			b := col[r]
			histG[b] += g.grad[r]
			histH[b] += g.hess[r]
		}
		var gl, hl float64
		for b := 0; b < nb-1; b++ {
			gl += histG[b]
			hl += histH[b]
			gr, hr := sumG-gl, sumH-hl
			if hl < g.params.MinChildWeight || hr < g.params.MinChildWeight {
				continue
			}
			gain := 0.5*(gl*gl/(hl+lambda)+gr*gr/(hr+lambda)-parent) - g.params.Gamma
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, b
			}
		}
	}
	if bestFeature < 0 {
		return idx
	}

	col := g.bins[bestFeature]
	split := 0
	for i, r := range rows {
		if int(col[r]) <= bestBin {
			rows[i], rows[split] = rows[split], rows[i]
			split++
		}
	}
	if split == 0 || split == len(rows) {
		return idx
	}

	left := g.grow(rows[:split], depth+1)
	right := g.grow(rows[split:], depth+1)
	g.tree.Nodes[idx] = Node{
		Feature:   bestFeature,
		Threshold: g.binner.cuts[bestFeature][bestBin],
		Left:      left,
		Right:     right,
		Gain:      bestGain,
	}
	return idx
}
