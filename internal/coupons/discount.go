package coupons

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplyDiscount returns total - total*percent/100 rounded to two decimal places.
func ApplyDiscount(total decimal.Decimal, percent float64) decimal.Decimal {
	off := total.Mul(decimal.NewFromFloat(percent)).Div(hundred)
	return total.Sub(off).Round(2)
}

// DiscountedTotal applies c to total. A nil coupon leaves total unchanged.
func (c *Coupon) DiscountedTotal(total decimal.Decimal) decimal.Decimal {
	if c == nil {
		return total
	}
	return ApplyDiscount(total, c.DiscountPercent)
}
