package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/enhen-x/Quant-A-Share/internal/model"
)

var (
	// 佣金费率 0.025%，最低5元
	CommissionRate = decimal.RequireFromString("0.00025")
	MinCommission  = decimal.NewFromInt(5)

	// 印花税 0.05%（仅卖出）
	StampTaxRate = decimal.RequireFromString("0.0005")

	// 过户费 0.001%（仅沪市）
	TransferFeeRate = decimal.RequireFromString("0.00001")
)

// IsShanghai 沪市股票
func IsShanghai(code string) bool {
	return strings.HasPrefix(code, "sh.") || strings.HasPrefix(code, "6")
}

func commission(amount decimal.Decimal) decimal.Decimal {
	c := amount.Mul(CommissionRate)
	if c.LessThan(MinCommission) {
		return MinCommission
	}
	return c
}

// RoundTripFees 一买一卖的全部费用，金额按分四舍五入
func RoundTripFees(code string, buyAmount, sellAmount float64) model.TradeFees {
	buy := decimal.NewFromFloat(buyAmount)
	sell := decimal.NewFromFloat(sellAmount)

	buyCommission := commission(buy)
	sellCommission := commission(sell)
	stampTax := sell.Mul(StampTaxRate)
	transfer := decimal.Zero
	if IsShanghai(code) {
		transfer = buy.Add(sell).Mul(TransferFeeRate)
	}
	total := buyCommission.Add(sellCommission).Add(stampTax).Add(transfer)

	return model.TradeFees{
		BuyCommission:  buyCommission.Round(2).InexactFloat64(),
		SellCommission: sellCommission.Round(2).InexactFloat64(),
		StampTax:       stampTax.Round(2).InexactFloat64(),
		TransferFee:    transfer.Round(2).InexactFloat64(),
		TotalFees:      total.Round(2).InexactFloat64(),
	}
}

// FeeDrag 以 amount 买入、持有期收益率 ret 卖出时，费用占买入金额的比例
func FeeDrag(code string, amount, ret float64) float64 {
	if amount <= 0 {
		return 0
	}
	fees := RoundTripFees(code, amount, amount*(1+ret))
	return decimal.NewFromFloat(fees.TotalFees).Div(decimal.NewFromFloat(amount)).InexactFloat64()
}
