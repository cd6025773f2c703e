// Package filter 回测与实盘共用的剔除规则：风险警示/退市名称、涨跌停、停牌与价格异常。
package filter

import (
	"math"
	"strings"
)

// 剔除原因
const (
	ReasonST        = "ST股"
	ReasonDelisting = "退市股"
	ReasonLimitUp   = "已涨停"
	ReasonLimitDown = "已跌停"
	ReasonSuspended = "停牌"
	ReasonBadPrice  = "价格异常"
)

// Candidate 某只股票某一天的行情快照
type Candidate struct {
	Name   string
	PctChg float64
	Volume float64
	Close  float64
}

// Rules 剔除规则
type Rules struct {
	// LimitPct 涨跌幅绝对值超过该值视为封板
	LimitPct float64
	// Live 实盘额外检查成交量与价格
	Live bool
}

// RestrictedName 名称包含 ST 或 退
func RestrictedName(name string) (string, bool) {
	upper := strings.ToUpper(name)
	if strings.Contains(upper, "ST") {
		return ReasonST, true
	}
	if strings.Contains(name, "退") {
		return ReasonDelisting, true
	}
	return "", false
}

// Check 返回剔除原因；可交易时 ok 为 true
func (r Rules) Check(c Candidate) (reason string, ok bool) {
	if reason, bad := RestrictedName(c.Name); bad {
		return reason, false
	}
	if r.Live && c.Volume == 0 {
		return ReasonSuspended, false
	}
	if c.PctChg > r.LimitPct {
		return ReasonLimitUp, false
	}
	if c.PctChg < -r.LimitPct {
		return ReasonLimitDown, false
	}
	if r.Live && (c.Close <= 0 || math.IsNaN(c.Close)) {
		return ReasonBadPrice, false
	}
	return "", true
}
