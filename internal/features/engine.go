// Package features 由单只股票的日线序列计算技术指标特征。
// 训练、回测、实盘扫描与 HTTP 接口都调用同一个 Compute。
package features

import (
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// Names 模型输入特征，顺序即列顺序
var Names = []string{
	"close",
	"roc_5", "roc_10", "roc_20",
	"bias_20",
	"rsi_6", "rsi_12", "rsi_gap",
	"dif", "dea", "macd_hist",
	"kdj_k", "kdj_d", "kdj_j",
	"bb_width", "bb_zscore",
	"vol_ratio",
}

// 特征列下标
const (
	ColClose = iota
	ColROC5
	ColROC10
	ColROC20
	ColBias20
	ColRSI6
	ColRSI12
	ColRSIGap
	ColDIF
	ColDEA
	ColMACDHist
	ColKDJK
	ColKDJD
	ColKDJJ
	ColBBWidth
	ColBBZScore
	ColVolRatio
)

// Point 某一交易日的特征
type Point struct {
	Date   string
	Open   float64
	Close  float64
	Volume float64
	PctChg float64
	Values []float64
	// Valid 所有特征都是有限值
	Valid bool
}

// Map 特征名到取值
func (p Point) Map() map[string]float64 {
	m := make(map[string]float64, len(Names))
	for i, name := range Names {
		m[name] = p.Values[i]
	}
	return m
}

// Compute 计算每根K线对应的特征，bars 需按日期升序。
// 第 i 个结果只依赖 bars[0..i]。
func Compute(bars []model.Bar) []Point {
	n := len(bars)
	if n == 0 {
		return nil
	}
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	roc5 := pctChange(closes, 5)
	roc10 := pctChange(closes, 10)
	roc20 := pctChange(closes, 20)

	ma20 := rollingMean(closes, 20)
	rsi6 := rsi(closes, 6)
	rsi12 := rsi(closes, 12)
	dif, dea, hist := macd(closes, 12, 26, 9)
	k, d, j := kdj(highs, lows, closes, 9, 3, 3)
	bbWidth, bbZ := bollinger(closes, 20, 2)
	volMA5 := rollingMean(volumes, 5)

	points := make([]Point, n)
	for i, b := range bars {
		values := make([]float64, len(Names))
		values[ColClose] = closes[i]
		values[ColROC5] = roc5[i]
		values[ColROC10] = roc10[i]
		values[ColROC20] = roc20[i]
		values[ColBias20] = (closes[i] - ma20[i]) / ma20[i]
		values[ColRSI6] = rsi6[i]
		values[ColRSI12] = rsi12[i]
		values[ColRSIGap] = rsi6[i] - rsi12[i]
		values[ColDIF] = dif[i]
		values[ColDEA] = dea[i]
		values[ColMACDHist] = hist[i]
		values[ColKDJK] = k[i]
		values[ColKDJD] = d[i]
		values[ColKDJJ] = j[i]
		values[ColBBWidth] = bbWidth[i]
		values[ColBBZScore] = bbZ[i]
		values[ColVolRatio] = volumes[i] / volMA5[i]

		pct := b.PctChg
		if i > 0 && closes[i-1] != 0 {
			pct = (closes[i]/closes[i-1] - 1) * 100
		}
		valid := true
		for _, v := range values {
			if isMissing(v) {
				valid = false
				break
			}
		}
		points[i] = Point{
			Date:   b.Date,
			Open:   b.Open,
			Close:  b.Close,
			Volume: b.Volume,
			PctChg: pct,
			Values: values,
			Valid:  valid,
		}
	}
	return points
}

// Latest 最后一根K线的特征
func Latest(bars []model.Bar) (Point, bool) {
	points := Compute(bars)
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}

// Build 生成带标签的样本：未来 horizon 根的收益率与初始标签（收益率 > target）。
// 指标预热期与末尾没有未来数据的行被丢弃。
func Build(code string, bars []model.Bar, horizon int, target float64) []model.FeatureRow {
	points := Compute(bars)
	var rows []model.FeatureRow
	for i, p := range points {
		if !p.Valid || i+horizon >= len(bars) {
			continue
		}
		fwd := bars[i+horizon].Close/bars[i].Close - 1
		if isMissing(fwd) {
			continue
		}
		label := 0
		if fwd > target {
			label = 1
		}
		rows = append(rows, model.FeatureRow{
			Code:          code,
			Date:          p.Date,
			Close:         p.Close,
			PctChg:        p.PctChg,
			Features:      p.Values,
			ForwardReturn: fwd,
			Target:        label,
		})
	}
	return rows
}

// ForwardReturns 按日期计算 horizon 根之后的收益率，用于基准指数
func ForwardReturns(bars []model.Bar, horizon int) map[string]float64 {
	out := make(map[string]float64, len(bars))
	for i := 0; i+horizon < len(bars); i++ {
		r := bars[i+horizon].Close/bars[i].Close - 1
		if !isMissing(r) {
			out[bars[i].Date] = r
		}
	}
	return out
}
