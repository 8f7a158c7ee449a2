// Package order turns an order form submission into priced order lines and the
// reservation requests needed to commit them.
package order

import (
	"fmt"
	"sort"

	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SelectedOption is an option group choice submitted for an item.
type SelectedOption struct {
	GroupID    int64  `json:"groupId"`
	GroupName  string `json:"groupName"`
	OptionID   int64  `json:"optionId"`
	OptionName string `json:"optionName"`
}

// UnresolvedLine is a submitted quantity no bundle option matched.
type UnresolvedLine struct {
	ItemID   int64
	BundleID int64
	Amount   int
}

// Resolution is the outcome of resolving one submission against a catalog snapshot.
type Resolution struct {
	Lines        []Line
	Requests     []models.ReservationRequest
	ShippingBase decimal.Decimal
	OutOfStock   bool
	// Unresolved lines carry no price. Their reservation requests have no bundle
	// option id and can never be committed.
	Unresolved []UnresolvedLine
}

// lineRequest is the shape-independent request for one bundle option.
type lineRequest struct {
	item      *models.Item
	bundle    *models.Bundle
	bo        *models.BundleOption
	option    *models.Option
	requested int
}

// Resolve prices the submission. Items and bundles are visited in catalog order and
// submitted ids the catalog does not know are ignored. A submitted bundle without
// bundle options is a models.ErrConfiguration fault.
func Resolve(sub Submission, items []models.Item) (Resolution, error) {
	res := Resolution{ShippingBase: decimal.Zero}
	for i := range items {
		item := &items[i]
		submitted := sub.Bundles[item.ID]
		if len(submitted) == 0 {
			continue
		}
		selected := selectedOptions(item, sub.SelectedOptions[item.ID])

		for j := range item.Bundles {
			bundle := &item.Bundles[j]
			value, ok := submitted[bundle.ID]
			if !ok {
				continue
			}
			if len(bundle.BundleOptions) == 0 {
				return Resolution{}, fmt.Errorf("%w: bundle %d of item %d has no bundle options",
					models.ErrConfiguration, bundle.ID, item.ID)
			}

			reqs, err := lineRequests(item, bundle, value, sub.SelectedOptions[item.ID])
			if err != nil {
				return Resolution{}, err
			}
			for _, req := range reqs {
				res.add(req, selected)
			}
		}
	}
	return res, nil
}

func lineRequests(item *models.Item, bundle *models.Bundle, value BundleSubmission, choices map[int64]int64) ([]lineRequest, error) {
	switch v := value.(type) {
	case NestedBundleOptionSubmission:
		ids := make([]int64, 0, len(v.Quantities))
		for id := range v.Quantities {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

		reqs := make([]lineRequest, 0, len(ids))
		for _, id := range ids {
			req := lineRequest{item: item, bundle: bundle, requested: v.Quantities[id]}
			if len(item.OptionGroups) == 0 {
				def, err := defaultOption(item, bundle)
				if err != nil {
					return nil, err
				}
				req.bo = def
			} else {
				req.bo, req.option = findByBundleOptionID(item, bundle.ID, id)
			}
			reqs = append(reqs, req)
		}
		return reqs, nil

	case ScalarBundleSubmission:
		req := lineRequest{item: item, bundle: bundle, requested: v.Quantity}
		if len(item.OptionGroups) == 0 {
			def, err := defaultOption(item, bundle)
			if err != nil {
				return nil, err
			}
			req.bo = def
		} else {
			req.bo, req.option = findBySelection(item, bundle.ID, choices)
		}
		return []lineRequest{req}, nil
	}
	return nil, fmt.Errorf("unsupported bundle submission %T", value)
}

// add runs the clamp, stock and price rules shared by both submission shapes.
func (r *Resolution) add(req lineRequest, selected []SelectedOption) {
	if req.bo == nil {
		// Without a bundle option there are no bounds to clamp against.
		if req.requested <= 0 {
			return
		}
		log.Warn().Int64("itemId", req.item.ID).Int64("bundleId", req.bundle.ID).
			Int("amount", req.requested).Msg("No bundle option matches submitted line")
		r.Unresolved = append(r.Unresolved, UnresolvedLine{ItemID: req.item.ID, BundleID: req.bundle.ID, Amount: req.requested})
		r.Requests = append(r.Requests, models.ReservationRequest{Amount: req.requested})
		return
	}

	bo := req.bo
	amount := Clamp(req.requested, bo.MinCount, bo.MaxCount)
	outOfStock := amount > bo.Inventory
	if outOfStock {
		r.OutOfStock = true
	}
	if amount <= 0 {
		return
	}

	displayed := min(amount, bo.Inventory)
	name := req.bundle.Name
	if req.option != nil {
		name += " / " + req.option.Label()
	}
	id := bo.ID
	r.Lines = append(r.Lines, Line{
		ItemID:          req.item.ID,
		ItemName:        req.item.Name,
		BundleID:        req.bundle.ID,
		BundleName:      name,
		BundleOptionID:  &id,
		Amount:          amount,
		DisplayedAmount: displayed,
		UnitPrice:       bo.Price,
		TotalPrice:      bo.Price.Mul(decimal.NewFromInt(int64(displayed))),
		OutOfStock:      outOfStock,
		SelectedOptions: selected,
	})
	if req.item.MinPorto.GreaterThan(r.ShippingBase) {
		r.ShippingBase = req.item.MinPorto
	}
	r.Requests = append(r.Requests, models.ReservationRequest{BundleOptionID: &id, Amount: amount})
}

// Clamp bounds a requested amount to [minCount, maxCount].
func Clamp(requested, minCount, maxCount int) int {
	return max(minCount, min(requested, maxCount))
}

func defaultOption(item *models.Item, bundle *models.Bundle) (*models.BundleOption, error) {
	bo, ok := bundle.DefaultOption()
	if !ok {
		return nil, fmt.Errorf("%w: bundle %d of item %d has no default bundle option",
			models.ErrConfiguration, bundle.ID, item.ID)
	}
	return &bo, nil
}

// findByBundleOptionID searches every group and option for the exact bundle option.
func findByBundleOptionID(item *models.Item, bundleID, boID int64) (*models.BundleOption, *models.Option) {
	for g := range item.OptionGroups {
		for o := range item.OptionGroups[g].Options {
			option := &item.OptionGroups[g].Options[o]
			for b := range option.BundleOptions {
				bo := &option.BundleOptions[b]
				if bo.BundleID == bundleID && bo.ID == boID {
					return bo, option
				}
			}
		}
	}
	return nil, nil
}

// findBySelection returns the first (group, option) in declaration order whose
// selected option offers the bundle. Later groups are not consulted once one matched.
func findBySelection(item *models.Item, bundleID int64, choices map[int64]int64) (*models.BundleOption, *models.Option) {
	for g := range item.OptionGroups {
		group := &item.OptionGroups[g]
		chosen, ok := choices[group.ID]
		if !ok {
			continue
		}
		for o := range group.Options {
			option := &group.Options[o]
			if option.ID != chosen {
				continue
			}
			for b := range option.BundleOptions {
				if option.BundleOptions[b].BundleID == bundleID {
					return &option.BundleOptions[b], option
				}
			}
		}
	}
	return nil, nil
}

func selectedOptions(item *models.Item, choices map[int64]int64) []SelectedOption {
	if len(choices) == 0 {
		return nil
	}
	var out []SelectedOption
	for _, group := range item.OptionGroups {
		chosen, ok := choices[group.ID]
		if !ok {
			continue
		}
		for _, option := range group.Options {
			if option.ID == chosen {
				out = append(out, SelectedOption{
					GroupID: group.ID, GroupName: group.Name, OptionID: option.ID, OptionName: option.Label(),
				})
				break
			}
		}
	}
	return out
}
