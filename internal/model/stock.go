package model

// Stock 股票基本信息
type Stock struct {
	Code   string `json:"code"` // sh.600000 形式
	Name   string `json:"name"`
	Market string `json:"market"` // SH: 上海, SZ: 深圳
}

// Bar 日线数据，(code, date) 唯一
type Bar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Amount   float64 `json:"amount"`
	Turnover float64 `json:"turnover"`
	PctChg   float64 `json:"pct_chg"`
}

// BarsResponse K线响应
type BarsResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Data []Bar  `json:"data"`
}

// PoolEntry 股票池条目
type PoolEntry struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Close     float64 `json:"close"`
	AvgAmount float64 `json:"avg_amount"`
}

// FeatureRow 特征样本，Features 与特征名列表顺序一致
type FeatureRow struct {
	Code          string    `json:"code"`
	Date          string    `json:"date"`
	Close         float64   `json:"close"`
	PctChg        float64   `json:"pct_chg"`
	Features      []float64 `json:"features"`
	ForwardReturn float64   `json:"forward_return"`
	ExcessReturn  float64   `json:"excess_return"`
	Target        int       `json:"target"`
}

// BuyListItem 买入清单条目
type BuyListItem struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	PctChg      float64 `json:"pct_chg"`
	Probability float64 `json:"probability"`
	BBWidth     float64 `json:"bb_width"`
	BelowFloor  bool    `json:"below_floor"`
}
