package order

import (
	"github.com/shopspring/decimal"
)

// Line is a resolved, priced request for one bundle option. Amount is the clamped
// request; DisplayedAmount is what is shown and priced, capped at available stock.
type Line struct {
	ItemID          int64            `json:"itemId"`
	ItemName        string           `json:"itemName"`
	BundleID        int64            `json:"bundleId"`
	BundleName      string           `json:"bundleName"`
	BundleOptionID  *int64           `json:"bundleOptionId"`
	Amount          int              `json:"amount"`
	DisplayedAmount int              `json:"displayedAmount"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
	OutOfStock      bool             `json:"outOfStock"`
	SelectedOptions []SelectedOption `json:"selectedOptions,omitempty"`
}

// Order aggregates the resolved lines of one submission. All fields are derived in
// New and the value is not changed afterwards.
type Order struct {
	Lines           []Line
	Customer        map[string]string
	ShippingBase    decimal.Decimal
	Totals          Totals
	OutOfStock      bool
	CollectInPerson bool
}

func New(res Resolution, customer map[string]string, collectInPerson bool) Order {
	lines := make([]Line, len(res.Lines))
	copy(lines, res.Lines)
	fields := make(map[string]string, len(customer))
	for k, v := range customer {
		fields[k] = v
	}
	return Order{
		Lines:           lines,
		Customer:        fields,
		ShippingBase:    res.ShippingBase,
		Totals:          ComputeTotals(lines, res.ShippingBase, collectInPerson),
		OutOfStock:      res.OutOfStock,
		CollectInPerson: collectInPerson,
	}
}

// Empty reports whether no line was ordered.
func (o Order) Empty() bool {
	return len(o.Lines) == 0
}
