package database

import (
	"context"
	"fmt"

	"github.com/drluca/shopstream/orderform/internal/models"
)

const (
	itemsQuery = `SELECT id, name, description, min_porto FROM items ORDER BY position, id`

	bundlesQuery = `SELECT id, item_id, name FROM bundles ORDER BY item_id, position, id`

	optionGroupsQuery = `SELECT id, item_id, name, position FROM option_groups ORDER BY item_id, position, id`

	optionsQuery = `SELECT id, group_id, name, description, position FROM options ORDER BY group_id, position, id`

	bundleOptionsQuery = `
		SELECT id, bundle_id, option_id, price, min_count, max_count, inventory
		FROM bundle_options
		ORDER BY bundle_id, id`
)

// CatalogRows reads every catalog table in declaration order.
func (db *DB) CatalogRows(ctx context.Context) (models.CatalogRows, error) {
	var rows models.CatalogRows

	if err := db.SQL.SelectContext(ctx, &rows.Items, itemsQuery); err != nil {
		return rows, fmt.Errorf("could not load items: %w", err)
	}
	if err := db.SQL.SelectContext(ctx, &rows.Bundles, bundlesQuery); err != nil {
		return rows, fmt.Errorf("could not load bundles: %w", err)
	}
	if err := db.SQL.SelectContext(ctx, &rows.OptionGroups, optionGroupsQuery); err != nil {
		return rows, fmt.Errorf("could not load option groups: %w", err)
	}
	if err := db.SQL.SelectContext(ctx, &rows.Options, optionsQuery); err != nil {
		return rows, fmt.Errorf("could not load options: %w", err)
	}
	if err := db.SQL.SelectContext(ctx, &rows.BundleOptions, bundleOptionsQuery); err != nil {
		return rows, fmt.Errorf("could not load bundle options: %w", err)
	}
	return rows, nil
}
