package features

import "math"

// 以下序列函数的输出与输入等长，缺失值用 NaN 表示。

// pctChange close[i]/close[i-n]-1
func pctChange(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	for i := n; i < len(x); i++ {
		out[i] = x[i]/x[i-n] - 1
	}
	return out
}

// rollingMean 满窗口均值
func rollingMean(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	for i := window - 1; i < len(x); i++ {
		sum := 0.0
		for _, v := range x[i-window+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}

// rollingStd 满窗口样本标准差（分母 n-1）
func rollingStd(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(x); i++ {
		w := x[i-window+1 : i+1]
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(window)
		ss := 0.0
		for _, v := range w {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// rollingMin 最多 window 根的最小值，前期不足窗口时用已有数据
func rollingMin(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		m := x[start]
		for _, v := range x[start+1 : i+1] {
			if v < m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// rollingMax 最多 window 根的最大值
func rollingMax(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		m := x[start]
		for _, v := range x[start+1 : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// ewmRecursive 递推式指数平均：y0=x0，y=(1-a)*y+a*x
func ewmRecursive(x []float64, alpha float64) []float64 {
	out := nanSlice(len(x))
	started := false
	var y float64
	for i, v := range x {
		if math.IsNaN(v) {
			if started {
				out[i] = y
			}
			continue
		}
		if !started {
			y = v
			started = true
		} else {
			y = (1-alpha)*y + alpha*v
		}
		out[i] = y
	}
	return out
}

// ewmAdjusted 权重归一化的指数平均，至少 minPeriods 个有效值才输出
func ewmAdjusted(x []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(x))
	decay := 1 - alpha
	var num, den float64
	count := 0
	for i, v := range x {
		if math.IsNaN(v) {
			num *= decay
			den *= decay
		} else {
			num = v + decay*num
			den = 1 + decay*den
			count++
		}
		if count >= minPeriods && den > 0 {
			out[i] = num / den
		}
	}
	return out
}

// rsi 涨跌幅的指数平均之比，平滑系数 alpha=1/n
func rsi(closes []float64, n int) []float64 {
	up := nanSlice(len(closes))
	down := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		up[i] = math.Max(d, 0)
		down[i] = math.Max(-d, 0)
	}
	alpha := 1 / float64(n)
	maUp := ewmAdjusted(up, alpha, n)
	maDown := ewmAdjusted(down, alpha, n)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = maUp[i] / (maUp[i] + maDown[i]) * 100
	}
	return out
}

// macd 返回 DIF、DEA 与柱（DIF-DEA）
func macd(closes []float64, fast, slow, signal int) (dif, dea, hist []float64) {
	emaFast := ewmRecursive(closes, spanAlpha(fast))
	emaSlow := ewmRecursive(closes, spanAlpha(slow))
	dif = make([]float64, len(closes))
	for i := range closes {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea = ewmRecursive(dif, spanAlpha(signal))
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = dif[i] - dea[i]
	}
	return dif, dea, hist
}

// kdj 随机指标，区间为零时 RSV 记为 0
func kdj(highs, lows, closes []float64, n, m1, m2 int) (k, d, j []float64) {
	low := rollingMin(lows, n)
	high := rollingMax(highs, n)
	rsv := make([]float64, len(closes))
	for i := range closes {
		v := (closes[i] - low[i]) / (high[i] - low[i]) * 100
		if math.IsNaN(v) {
			v = 0
		}
		rsv[i] = v
	}
	k = ewmRecursive(rsv, 1/float64(m1))
	d = ewmRecursive(k, 1/float64(m2))
	j = make([]float64, len(closes))
	for i := range closes {
		j[i] = 3*k[i] - 2*d[i]
	}
	return k, d, j
}

// bollinger 返回带宽 (upper-lower)/mean 与 z-score
func bollinger(closes []float64, window int, numStd float64) (width, z []float64) {
	mean := rollingMean(closes, window)
	std := rollingStd(closes, window)
	width = make([]float64, len(closes))
	z = make([]float64, len(closes))
	for i := range closes {
		upper := mean[i] + std[i]*numStd
		lower := mean[i] - std[i]*numStd
		width[i] = (upper - lower) / mean[i]
		z[i] = (closes[i] - mean[i]) / std[i]
	}
	return width, z
}

func spanAlpha(span int) float64 {
	return 2 / (float64(span) + 1)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
