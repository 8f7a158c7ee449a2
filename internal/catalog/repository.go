// Package catalog assembles the flat catalog tables into typed, validated items.
package catalog

import (
	"context"
	"fmt"

	"github.com/drluca/shopstream/orderform/internal/models"
)

// RowSource reads the raw catalog tables.
type RowSource interface {
	CatalogRows(ctx context.Context) (models.CatalogRows, error)
}

// Loader returns the catalog snapshot used to price one request.
type Loader interface {
	LoadCatalog(ctx context.Context) ([]models.Item, error)
}

type Repository struct {
	src RowSource
}

func NewRepository(src RowSource) *Repository {
	return &Repository{src: src}
}

// LoadCatalog reads and assembles the catalog. Storage errors are returned as they come.
func (r *Repository) LoadCatalog(ctx context.Context) ([]models.Item, error) {
	rows, err := r.src.CatalogRows(ctx)
	if err != nil {
		return nil, err
	}
	return Assemble(rows)
}

type bundleRef struct{ item, bundle int }

type groupRef struct{ item, group int }

type optionRef struct{ item, group, option int }

// Assemble nests the rows into items and validates the result. Every structural
// problem is reported as models.ErrConfiguration.
func Assemble(rows models.CatalogRows) ([]models.Item, error) {
	items := make([]models.Item, 0, len(rows.Items))
	itemIdx := make(map[int64]int, len(rows.Items))
	for _, r := range rows.Items {
		itemIdx[r.ID] = len(items)
		items = append(items, models.Item{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			MinPorto:    r.MinPorto,
		})
	}

	bundles := make(map[int64]bundleRef, len(rows.Bundles))
	for _, r := range rows.Bundles {
		i, ok := itemIdx[r.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: bundle %d belongs to unknown item %d", models.ErrConfiguration, r.ID, r.ItemID)
		}
		bundles[r.ID] = bundleRef{item: i, bundle: len(items[i].Bundles)}
		items[i].Bundles = append(items[i].Bundles, models.Bundle{ID: r.ID, ItemID: r.ItemID, Name: r.Name})
	}

	groups := make(map[int64]groupRef, len(rows.OptionGroups))
	for _, r := range rows.OptionGroups {
		i, ok := itemIdx[r.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: option group %d belongs to unknown item %d", models.ErrConfiguration, r.ID, r.ItemID)
		}
		groups[r.ID] = groupRef{item: i, group: len(items[i].OptionGroups)}
		items[i].OptionGroups = append(items[i].OptionGroups, models.OptionGroup{
			ID: r.ID, ItemID: r.ItemID, Name: r.Name, Position: r.Position,
		})
	}

	options := make(map[int64]optionRef, len(rows.Options))
	for _, r := range rows.Options {
		g, ok := groups[r.GroupID]
		if !ok {
			return nil, fmt.Errorf("%w: option %d belongs to unknown group %d", models.ErrConfiguration, r.ID, r.GroupID)
		}
		group := &items[g.item].OptionGroups[g.group]
		options[r.ID] = optionRef{item: g.item, group: g.group, option: len(group.Options)}
		group.Options = append(group.Options, models.Option{
			ID: r.ID, GroupID: r.GroupID, Name: r.Name, Description: r.Description, Position: r.Position,
		})
	}

	for _, r := range rows.BundleOptions {
		b, ok := bundles[r.BundleID]
		if !ok {
			return nil, fmt.Errorf("%w: bundle option %d belongs to unknown bundle %d", models.ErrConfiguration, r.ID, r.BundleID)
		}
		bo := models.BundleOption{
			ID:        r.ID,
			BundleID:  r.BundleID,
			Price:     r.Price,
			MinCount:  r.MinCount,
			MaxCount:  r.MaxCount,
			Inventory: r.Inventory,
		}
		if r.OptionID.Valid {
			optionID := r.OptionID.Int64
			o, ok := options[optionID]
			if !ok {
				return nil, fmt.Errorf("%w: bundle option %d references unknown option %d", models.ErrConfiguration, r.ID, optionID)
			}
			if o.item != b.item {
				return nil, fmt.Errorf("%w: bundle option %d joins bundle %d with option %d of another item",
					models.ErrConfiguration, r.ID, r.BundleID, optionID)
			}
			bo.OptionID = &optionID
			option := &items[o.item].OptionGroups[o.group].Options[o.option]
			option.BundleOptions = append(option.BundleOptions, bo)
		}
		bundle := &items[b.item].Bundles[b.bundle]
		bundle.BundleOptions = append(bundle.BundleOptions, bo)
	}

	if err := Validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Validate checks the invariants pricing and reservation rely on.
func Validate(items []models.Item) error {
	for _, item := range items {
		if item.MinPorto.IsNegative() {
			return fmt.Errorf("%w: item %d has negative minimum shipping cost", models.ErrConfiguration, item.ID)
		}
		for _, bundle := range item.Bundles {
			if len(bundle.BundleOptions) == 0 {
				return fmt.Errorf("%w: bundle %d of item %d has no bundle options", models.ErrConfiguration, bundle.ID, item.ID)
			}
			for _, bo := range bundle.BundleOptions {
				if err := validateBundleOption(bo); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateBundleOption(bo models.BundleOption) error {
	switch {
	case bo.Price.IsNegative():
		return fmt.Errorf("%w: bundle option %d has a negative price", models.ErrConfiguration, bo.ID)
	case bo.MinCount > bo.MaxCount:
		return fmt.Errorf("%w: bundle option %d has min count %d above max count %d", models.ErrConfiguration, bo.ID, bo.MinCount, bo.MaxCount)
	case bo.Inventory < 0:
		return fmt.Errorf("%w: bundle option %d has negative inventory", models.ErrConfiguration, bo.ID)
	}
	return nil
}
