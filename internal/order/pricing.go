package order

import "github.com/shopspring/decimal"

// Totals holds the numeric order sums. Formatting is left to the caller.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums the displayed line prices. Shipping is the shipping base unless
// the customer collects the order in person.
func ComputeTotals(lines []Line, shippingBase decimal.Decimal, collectInPerson bool) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.TotalPrice)
	}
	shipping := shippingBase
	if collectInPerson {
		shipping = decimal.Zero
	}
	return Totals{Subtotal: subtotal, Shipping: shipping, Total: subtotal.Add(shipping)}
}
