package domain

import "github.com/shopspring/decimal"

// Cash and price values carry a fixed scale through every computation:
// 2 decimal places for money, 4 for prices and averages. Rounding is
// banker's (round half to even) at the declared scale.

// RoundCash normalizes a money amount to 2 dp.
func RoundCash(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// RoundPrice normalizes a price or average to 4 dp.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(4)
}

// CashString renders a money amount with exactly 2 dp for storage.
func CashString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// PriceString renders a price with exactly 4 dp for storage.
func PriceString(d decimal.Decimal) string {
	return d.StringFixed(4)
}

// WeightedAvg returns (oldQty*oldAvg + newQty*newPrice) / (oldQty+newQty)
// at 4 dp. Callers guarantee oldQty+newQty > 0.
func WeightedAvg(oldQty int64, oldAvg decimal.Decimal, newQty int64, newPrice decimal.Decimal) decimal.Decimal {
	total := decimal.NewFromInt(oldQty).Mul(oldAvg).
		Add(decimal.NewFromInt(newQty).Mul(newPrice))
	return RoundPrice(total.Div(decimal.NewFromInt(oldQty + newQty)))
}
