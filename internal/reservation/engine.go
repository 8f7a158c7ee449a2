// Package reservation commits inventory deductions for a whole order at once:
// every request is validated against stock read inside the same transaction,
// and either all of them are decremented or none is.
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrInsufficientStock is returned by a Tx when a decrement would drive inventory negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// Tx is the part of an open storage transaction the engine needs.
type Tx interface {
	// LockInventory returns the current inventory of the given bundle options and keeps
	// their rows locked until the transaction ends. Unknown ids are absent from the map.
	LockInventory(ctx context.Context, ids []int64) (map[int64]int, error)
	DecrementInventory(ctx context.Context, bundleOptionID int64, amount int) error
}

// Store opens scoped transactions: fn's nil return commits, anything else rolls back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// rejection aborts the transaction for a business reason rather than a storage failure.
type rejection struct {
	reason string
}

func (r *rejection) Error() string { return "reservation rejected: " + r.reason }

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Reserve consolidates the requests and decrements stock for all of them in one
// transaction. It returns false, with nothing changed, when any request cannot be
// fully satisfied. Storage failures roll back and are returned as errors.
func (e *Engine) Reserve(ctx context.Context, requests []models.ReservationRequest) (bool, error) {
	consolidated := Consolidate(requests)
	if len(consolidated) == 0 {
		return true, nil
	}

	err := e.store.InTx(ctx, func(tx Tx) error {
		return reserve(ctx, tx, consolidated)
	})

	var rej *rejection
	switch {
	case err == nil:
		log.Info().Int("requests", len(consolidated)).Msg("Inventory reserved")
		return true, nil
	case errors.As(err, &rej), errors.Is(err, ErrInsufficientStock):
		log.Warn().Err(err).Msg("Inventory reservation rejected")
		return false, nil
	default:
		return false, fmt.Errorf("reserving inventory: %w", err)
	}
}

func reserve(ctx context.Context, tx Tx, requests []models.ReservationRequest) error {
	ids := make([]int64, 0, len(requests))
	for _, r := range requests {
		if r.BundleOptionID == nil {
			return &rejection{reason: "request without bundle option"}
		}
		ids = append(ids, *r.BundleOptionID)
	}

	stock, err := tx.LockInventory(ctx, ids)
	if err != nil {
		return err
	}

	for _, r := range requests {
		id := *r.BundleOptionID
		available, ok := stock[id]
		if !ok {
			return &rejection{reason: fmt.Sprintf("bundle option %d does not exist", id)}
		}
		if r.Amount <= 0 {
			return &rejection{reason: fmt.Sprintf("bundle option %d: non-positive amount %d", id, r.Amount)}
		}
		if r.Amount > available {
			return &rejection{reason: fmt.Sprintf("bundle option %d: available %d, requested %d", id, available, r.Amount)}
		}
	}

	for _, r := range requests {
		if err := tx.DecrementInventory(ctx, *r.BundleOptionID, r.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Consolidate merges requests for the same bundle option by summing their amounts,
// keeping the order in which ids first appear. Requests without a bundle option are
// kept one by one so that validation rejects them.
func Consolidate(requests []models.ReservationRequest) []models.ReservationRequest {
	out := make([]models.ReservationRequest, 0, len(requests))
	index := make(map[int64]int, len(requests))
	for _, r := range requests {
		if r.BundleOptionID == nil {
			out = append(out, r)
			continue
		}
		id := *r.BundleOptionID
		if i, ok := index[id]; ok {
			out[i].Amount += r.Amount
			continue
		}
		index[id] = len(out)
		out = append(out, models.ReservationRequest{BundleOptionID: &id, Amount: r.Amount})
	}
	return out
}
