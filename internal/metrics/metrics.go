// Package metrics 流水线运行指标，经 /metrics 暴露给 Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quant",
		Name:      "fetch_retries_total",
		Help:      "行情请求重试次数",
	})

	LoaderInstruments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quant",
		Name:      "loader_instruments_total",
		Help:      "下载器处理的股票数，按结果分类",
	}, []string{"result"})

	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant",
		Name:      "pool_size",
		Help:      "最近一次选股的股票池大小",
	})

	DatasetRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant",
		Name:      "dataset_rows",
		Help:      "最近一次特征工程生成的样本数",
	})

	ModelAUC = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant",
		Name:      "model_validation_auc",
		Help:      "最近一次训练的验证集 AUC",
	})

	BacktestAlpha = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant",
		Name:      "backtest_alpha_points",
		Help:      "最近一次回测的超额收益（百分点）",
	})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quant",
		Name:      "step_duration_seconds",
		Help:      "流水线各步骤耗时",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"step"})

	StepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quant",
		Name:      "step_failures_total",
		Help:      "流水线步骤失败次数",
	}, []string{"step"})
)
