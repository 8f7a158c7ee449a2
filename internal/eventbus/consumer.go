package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/drluca/shopstream/orderform/internal/contracts"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// deliveryProcessor runs a handler with bounded retries and routes permanent
// failures to the parking lot.
type deliveryProcessor struct {
	handler    contracts.MessageHandler
	park       func(amqp.Delivery) error
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt*2) * time.Second
}

func (p deliveryProcessor) process(ctx context.Context, d amqp.Delivery) {
	maxRetries := max(p.maxRetries, 1)
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = p.handler(ctx, d)
		if err == nil {
			if ackErr := d.Ack(false); ackErr != nil {
				log.Error().Err(ackErr).Uint64("deliveryTag", d.DeliveryTag).Msg("Failed to ACK message")
			}
			return
		}

		if errors.Is(err, contracts.ErrPermanentFailure) {
			log.Error().Err(err).Uint64("deliveryTag", d.DeliveryTag).Msg("Permanent failure processing message. Sending to parking lot.")
			if parkErr := p.park(d); parkErr != nil {
				log.Error().Err(parkErr).Uint64("deliveryTag", d.DeliveryTag).Msg("Failed to park message. NACKing to DLX.")
				_ = d.Nack(false, false)
				return
			}
			_ = d.Ack(false)
			return
		}

		log.Warn().Err(err).Uint64("deliveryTag", d.DeliveryTag).Int("attempt", attempt).Int("maxRetries", maxRetries).
			Msg("Transient error processing message")
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			case <-time.After(p.backoff(attempt)):
			}
		}
	}

	log.Error().Err(err).Uint64("deliveryTag", d.DeliveryTag).Int("retries", maxRetries).
		Msg("Max processing retries exceeded. NACKing message to DLX.")
	if nackErr := d.Nack(false, false); nackErr != nil {
		log.Error().Err(nackErr).Uint64("deliveryTag", d.DeliveryTag).Msg("Failed to NACK message")
	}
}
