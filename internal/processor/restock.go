package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drluca/shopstream/orderform/internal/contracts"
	"github.com/drluca/shopstream/orderform/internal/database"
	"github.com/drluca/shopstream/orderform/internal/metrics"
	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// Restocker adds received stock to a bundle option.
type Restocker interface {
	IncrementInventory(ctx context.Context, bundleOptionID int64, quantity int) error
}

// RestockHandler consumes stock.received messages.
type RestockHandler struct {
	store       Restocker
	invalidator Invalidator
	metrics     *metrics.Metrics
}

// NewRestockHandler returns the handler; invalidator may be nil.
func NewRestockHandler(store Restocker, invalidator Invalidator, m *metrics.Metrics) *RestockHandler {
	return &RestockHandler{store: store, invalidator: invalidator, metrics: m}
}

// MessageHandler restocks one bundle option. Malformed messages and unknown bundle
// options are permanent failures, storage errors are retried.
func (h *RestockHandler) MessageHandler(ctx context.Context, delivery amqp.Delivery) error {
	log.Info().Msg("Received stock.received event")

	var event models.StockReceivedEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		h.metrics.Restocks.WithLabelValues("rejected").Inc()
		return fmt.Errorf("failed to unmarshal StockReceivedEvent: %v: %w", err, contracts.ErrPermanentFailure)
	}
	if event.BundleOptionID <= 0 || event.Quantity <= 0 {
		h.metrics.Restocks.WithLabelValues("rejected").Inc()
		return fmt.Errorf("invalid StockReceivedEvent %s (bundle option %d, quantity %d): %w",
			event.EventID, event.BundleOptionID, event.Quantity, contracts.ErrPermanentFailure)
	}

	if err := h.store.IncrementInventory(ctx, event.BundleOptionID, event.Quantity); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.metrics.Restocks.WithLabelValues("rejected").Inc()
			return fmt.Errorf("%v: %w", err, contracts.ErrPermanentFailure)
		}
		log.Error().Err(err).Int64("bundleOptionId", event.BundleOptionID).Msg("Failed to restock. This is a transient error.")
		return err
	}

	if h.invalidator != nil {
		h.invalidator.Invalidate(ctx)
	}
	h.metrics.Restocks.WithLabelValues("applied").Inc()
	log.Info().Str("eventId", event.EventID).Int64("bundleOptionId", event.BundleOptionID).Int("quantity", event.Quantity).
		Msg("Inventory restocked")
	return nil
}
