package store

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// VATIncludedTax returns the tax portion contained in a gross amount for a
// VAT percentage: net = gross / (1 + rate/100), tax = round(gross - net, 2).
// A rate of zero or below carries no tax at all.
func VATIncludedTax(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	net := gross.Div(one.Add(rate.Div(hundred)))
	return gross.Sub(net).Round(2)
}

// GrossLineTotal is unit price times quantity, rounded to cents.
func GrossLineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
