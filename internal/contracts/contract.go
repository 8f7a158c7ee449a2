package contracts

import (
	"context"
	"errors"

	"github.com/streadway/amqp"
)

// MessageHandler processes one delivery from the stock queue. A nil return acks the
// message, ErrPermanentFailure parks it and any other error is retried.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ErrPermanentFailure marks a message that can never be processed, such as a
// malformed payload or an unknown bundle option.
var ErrPermanentFailure = errors.New("permanent failure processing message")
