package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	backtest := Rules{LimitPct: 9.5}
	live := Rules{LimitPct: 9.5, Live: true}

	cases := []struct {
		name   string
		rules  Rules
		c      Candidate
		reason string
	}{
		{"正常", backtest, Candidate{Name: "浦发银行", PctChg: 3, Volume: 100, Close: 10}, ""},
		{"ST", backtest, Candidate{Name: "*ST 海润", PctChg: 1}, ReasonST},
		{"小写st", backtest, Candidate{Name: "st 测试", PctChg: 1}, ReasonST},
		{"退市", backtest, Candidate{Name: "退市海润", PctChg: 1}, ReasonDelisting},
		{"涨停", backtest, Candidate{Name: "A", PctChg: 10.01}, ReasonLimitUp},
		{"跌停", backtest, Candidate{Name: "A", PctChg: -9.8}, ReasonLimitDown},
		{"边界", backtest, Candidate{Name: "A", PctChg: 9.5}, ""},
		{"回测不查成交量", backtest, Candidate{Name: "A", PctChg: 1, Volume: 0}, ""},
		{"停牌", live, Candidate{Name: "A", PctChg: 0, Volume: 0, Close: 10}, ReasonSuspended},
		{"价格异常", live, Candidate{Name: "A", PctChg: 0, Volume: 10, Close: 0}, ReasonBadPrice},
		{"空名称", live, Candidate{PctChg: 2, Volume: 10, Close: 5}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := tc.rules.Check(tc.c)
			assert.Equal(t, tc.reason, reason)
			assert.Equal(t, tc.reason == "", ok)
		})
	}
}
