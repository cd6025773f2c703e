package model

// TradeFees 交易费用
type TradeFees struct {
	BuyCommission  float64 `json:"buy_commission"`  // 买入佣金
	SellCommission float64 `json:"sell_commission"` // 卖出佣金
	StampTax       float64 `json:"stamp_tax"`       // 印花税
	TransferFee    float64 `json:"transfer_fee"`    // 过户费
	TotalFees      float64 `json:"total_fees"`      // 总费用
}

// Pick 调仓日选中的一只股票
type Pick struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Probability   float64 `json:"probability"`
	ForwardReturn float64 `json:"forward_return"`
	PctChg        float64 `json:"pct_chg"`
}

// CurvePoint 资金曲线上的一个调仓日
type CurvePoint struct {
	Date             string  `json:"date"`
	StrategyReturn   float64 `json:"strategy_return"`
	BenchmarkReturn  float64 `json:"benchmark_return"`
	StrategyCapital  float64 `json:"strategy_capital"`
	BenchmarkCapital float64 `json:"benchmark_capital"`
	Picks            []Pick  `json:"picks"`
	CandidateCount   int     `json:"candidate_count"`
	RejectedCount    int     `json:"rejected_count"`
	FeeDrag          float64 `json:"fee_drag"`
}

// BacktestReport 单窗口回测结果
type BacktestReport struct {
	StartDate        string       `json:"start_date"`
	EndDate          string       `json:"end_date"`
	Periods          int          `json:"periods"`
	StrategyCapital  float64      `json:"strategy_capital"`
	BenchmarkCapital float64      `json:"benchmark_capital"`
	StrategyReturn   float64      `json:"strategy_return"`  // 百分比
	BenchmarkReturn  float64      `json:"benchmark_return"` // 百分比
	Alpha            float64      `json:"alpha"`            // 百分点
	Rejected         int          `json:"rejected"`
	EmptyPeriods     int          `json:"empty_periods"`
	Curve            []CurvePoint `json:"curve"`
}

// RandomTrial 随机窗口中的一次试验
type RandomTrial struct {
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	StrategyReturn  float64 `json:"strategy_return"`
	BenchmarkReturn float64 `json:"benchmark_return"`
	Alpha           float64 `json:"alpha"`
}

// RandomReport 随机窗口回测汇总
type RandomReport struct {
	Trials             []RandomTrial `json:"trials"`
	MeanStrategyReturn float64       `json:"mean_strategy_return"`
	MeanAlpha          float64       `json:"mean_alpha"`
	WinRateAbsolute    float64       `json:"win_rate_absolute"` // 策略收益为正的比例
	WinRateVsBenchmark float64       `json:"win_rate_vs_benchmark"`
	Best               RandomTrial   `json:"best"`
	Worst              RandomTrial   `json:"worst"`
}

// AuditRecord 交易审计记录
type AuditRecord struct {
	Date          string   `json:"date"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Probability   float64  `json:"probability"`
	ForwardReturn float64  `json:"forward_return"`
	Open          float64  `json:"open"`
	Close         float64  `json:"close"`
	PctChg        float64  `json:"pct_chg"`
	LimitUpBody   bool     `json:"limit_up_body"` // 收盘/开盘 > 1.095
	Flags         []string `json:"flags"`
}
