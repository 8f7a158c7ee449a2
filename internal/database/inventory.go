package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/drluca/shopstream/orderform/internal/reservation"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a bundle option id does not exist.
var ErrNotFound = errors.New("bundle option not found")

const (
	lockInventoryQuery = `
		SELECT id, inventory FROM bundle_options
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	decrementInventoryQuery = `UPDATE bundle_options SET inventory = inventory - $1 WHERE id = $2 AND inventory >= $1`

	incrementInventoryQuery = `UPDATE bundle_options SET inventory = inventory + $1 WHERE id = $2`
)

// Tx is an open transaction handed to WithTx callbacks.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back on error or panic; no exit path leaves it open.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.SQL.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx)
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Error().Err(err).Msg("Failed to roll back transaction")
	}
}

// LockInventory reads the current inventory of the given bundle options and
// locks their rows until the transaction ends. Unknown ids are absent from the map.
func (t *Tx) LockInventory(ctx context.Context, ids []int64) (map[int64]int, error) {
	rows, err := t.tx.QueryxContext(ctx, lockInventoryQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error reading inventory: %w", err)
	}
	defer rows.Close()

	inventory := make(map[int64]int, len(ids))
	for rows.Next() {
		var id int64
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, fmt.Errorf("error scanning inventory: %w", err)
		}
		inventory[id] = stock
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading inventory: %w", err)
	}
	return inventory, nil
}

// DecrementInventory decreases the inventory of one bundle option.
func (t *Tx) DecrementInventory(ctx context.Context, bundleOptionID int64, amount int) error {
	result, err := t.tx.ExecContext(ctx, decrementInventoryQuery, amount, bundleOptionID)
	if err != nil {
		return fmt.Errorf("error updating inventory for bundle option %d: %w", bundleOptionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for bundle option %d: %w", bundleOptionID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bundle option %d: %w", bundleOptionID, reservation.ErrInsufficientStock)
	}
	return nil
}

// IncrementInventory adds received stock to one bundle option.
func (db *DB) IncrementInventory(ctx context.Context, bundleOptionID int64, quantity int) error {
	result, err := db.SQL.ExecContext(ctx, incrementInventoryQuery, quantity, bundleOptionID)
	if err != nil {
		return fmt.Errorf("error restocking bundle option %d: %w", bundleOptionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for bundle option %d: %w", bundleOptionID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bundle option %d: %w", bundleOptionID, ErrNotFound)
	}
	return nil
}

// InventoryStore exposes the database to the reservation engine.
type InventoryStore struct {
	DB *DB
}

func (s InventoryStore) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	return s.DB.WithTx(ctx, func(tx *Tx) error {
		return fn(tx)
	})
}
