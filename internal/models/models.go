package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// --- Catalog ---

// Item is a catalog product owning bundles and option groups.
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	MinPorto     decimal.Decimal `json:"minPorto"`
	Bundles      []Bundle        `json:"bundles"`
	OptionGroups []OptionGroup   `json:"optionGroups"`
}

// Bundle is a purchasable variant of an item. Price and stock live on its bundle options.
type Bundle struct {
	ID            int64          `json:"id"`
	ItemID        int64          `json:"itemId"`
	Name          string         `json:"name"`
	BundleOptions []BundleOption `json:"bundleOptions"`
}

// DefaultOption returns the bundle option used when the item has no option groups:
// the first one without an option, falling back to the first one declared.
func (b Bundle) DefaultOption() (BundleOption, bool) {
	for _, bo := range b.BundleOptions {
		if bo.OptionID == nil {
			return bo, true
		}
	}
	if len(b.BundleOptions) > 0 {
		return b.BundleOptions[0], true
	}
	return BundleOption{}, false
}

// OptionGroup is a set of mutually exclusive options scoped to an item.
type OptionGroup struct {
	ID       int64    `json:"id"`
	ItemID   int64    `json:"itemId"`
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Options  []Option `json:"options"`
}

// Option is one choice within an option group, joined with the bundle options offering it.
type Option struct {
	ID            int64          `json:"id"`
	GroupID       int64          `json:"groupId"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Position      int            `json:"position"`
	BundleOptions []BundleOption `json:"bundleOptions"`
}

// Label is the text appended to a bundle name once this option is resolved.
func (o Option) Label() string {
	if o.Description != "" {
		return o.Description
	}
	return o.Name
}

// BundleOption is the priced, stocked SKU.
type BundleOption struct {
	ID        int64           `json:"id"`
	BundleID  int64           `json:"bundleId"`
	OptionID  *int64          `json:"optionId,omitempty"`
	Price     decimal.Decimal `json:"price"`
	MinCount  int             `json:"minCount"`
	MaxCount  int             `json:"maxCount"`
	Inventory int             `json:"inventory"`
}

// ReservationRequest asks the reservation engine for Amount units of a bundle option.
// A nil BundleOptionID marks a line that never resolved to a SKU.
type ReservationRequest struct {
	BundleOptionID *int64 `json:"bundleOptionId"`
	Amount         int    `json:"amount"`
}

// --- Database rows ---

// CatalogRows is the flat read of every catalog table, ordered by declaration.
type CatalogRows struct {
	Items         []ItemRow
	Bundles       []BundleRow
	OptionGroups  []OptionGroupRow
	Options       []OptionRow
	BundleOptions []BundleOptionRow
}

type ItemRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	MinPorto    decimal.Decimal `db:"min_porto"`
}

type BundleRow struct {
	ID     int64  `db:"id"`
	ItemID int64  `db:"item_id"`
	Name   string `db:"name"`
}

type OptionGroupRow struct {
	ID       int64  `db:"id"`
	ItemID   int64  `db:"item_id"`
	Name     string `db:"name"`
	Position int    `db:"position"`
}

type OptionRow struct {
	ID          int64  `db:"id"`
	GroupID     int64  `db:"group_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Position    int    `db:"position"`
}

type BundleOptionRow struct {
	ID        int64           `db:"id"`
	BundleID  int64           `db:"bundle_id"`
	OptionID  sql.NullInt64   `db:"option_id"`
	Price     decimal.Decimal `db:"price"`
	MinCount  int             `db:"min_count"`
	MaxCount  int             `db:"max_count"`
	Inventory int             `db:"inventory"`
}

// --- Incoming Event ---

// StockReceivedEvent is consumed when a bundle option is replenished.
type StockReceivedEvent struct {
	EventID        string    `json:"eventId"`
	BundleOptionID int64     `json:"bundleOptionId"`
	Quantity       int       `json:"quantity"`
	Timestamp      time.Time `json:"timestamp"`
}

// --- Outgoing Event ---

// PlacedLine is one reserved line of a placed order.
type PlacedLine struct {
	BundleOptionID int64           `json:"bundleOptionId"`
	ItemName       string          `json:"itemName"`
	BundleName     string          `json:"bundleName"`
	Amount         int             `json:"amount"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
}

// OrderPlacedEvent is published after the inventory of an order has been committed.
type OrderPlacedEvent struct {
	EventID         string          `json:"eventId"`
	OrderNumber     string          `json:"orderNumber"`
	CustomerEmail   string          `json:"customerEmail"`
	Lines           []PlacedLine    `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	CollectInPerson bool            `json:"collectInPerson"`
	Timestamp       time.Time       `json:"timestamp"`
}
