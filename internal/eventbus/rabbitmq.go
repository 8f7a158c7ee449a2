package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drluca/shopstream/orderform/config"
	"github.com/drluca/shopstream/orderform/internal/contracts"
	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const (
	// For publisher confirms
	publishTimeout = 5 * time.Second
)

var ErrNotReady = errors.New("rabbitmq not ready")

// RabbitMQManager owns the broker connection. It publishes order events with
// publisher confirms and consumes stock replenishment messages.
type RabbitMQManager struct {
	config config.Config

	mu           sync.Mutex // guards the fields below and serialises publishes
	connection   *amqp.Connection
	consumerChan *amqp.Channel
	producerChan *amqp.Channel
	confirms     chan amqp.Confirmation
	ready        bool

	connClosed chan *amqp.Error
	done       chan struct{}
	closeOnce  sync.Once

	consumeCtx context.Context
	handler    contracts.MessageHandler
}

// NewRabbitMQManager connects and declares the topology. A background monitor
// reconnects when the connection drops and restarts an active consumer.
func NewRabbitMQManager(cfg config.Config) (*RabbitMQManager, error) {
	rmq := &RabbitMQManager{config: cfg, done: make(chan struct{})}
	if err := rmq.connect(); err != nil {
		return nil, fmt.Errorf("initial RabbitMQ connection failed: %w", err)
	}
	go rmq.handleReconnect()
	return rmq, nil
}

func (rmq *RabbitMQManager) connect() error {
	log.Info().Str("url", rmq.config.RabbitMQURL).Msg("Attempting to connect to RabbitMQ")
	conn, err := amqp.Dial(rmq.config.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	producer, confirms, err := rmq.setupProducerChannel(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to setup producer channel: %w", err)
	}
	consumer, err := rmq.setupConsumerChannelAndTopology(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to setup consumer channel and topology: %w", err)
	}

	connClosed := make(chan *amqp.Error, 1)
	conn.NotifyClose(connClosed)

	rmq.mu.Lock()
	rmq.connection = conn
	rmq.producerChan = producer
	rmq.confirms = confirms
	rmq.consumerChan = consumer
	rmq.connClosed = connClosed
	rmq.ready = true
	rmq.mu.Unlock()

	log.Info().Msg("RabbitMQ connected and channels initialized successfully")
	return nil
}

func (rmq *RabbitMQManager) setupProducerChannel(conn *amqp.Connection) (*amqp.Channel, chan amqp.Confirmation, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, nil, fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	cfg := rmq.config
	if err := ch.ExchangeDeclare(cfg.OutgoingExchangeName, cfg.OutgoingExchangeType, true, false, false, false, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to declare outgoing exchange %s: %w", cfg.OutgoingExchangeName, err)
	}
	log.Info().Str("exchange", cfg.OutgoingExchangeName).Msg("Outgoing exchange declared")
	return ch, confirms, nil
}

func (rmq *RabbitMQManager) setupConsumerChannelAndTopology(conn *amqp.Connection) (*amqp.Channel, error) {
	cfg := rmq.config
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(cfg.RabbitMQPrefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS on consumer channel: %w", err)
	}

	dlq := cfg.IncomingQueueName + ".dlq"
	steps := []struct {
		what string
		run  func() error
	}{
		{"declare DLX " + cfg.DLXName, func() error {
			return ch.ExchangeDeclare(cfg.DLXName, "direct", true, false, false, false, nil)
		}},
		{"declare DLQ " + dlq, func() error {
			_, err := ch.QueueDeclare(dlq, true, false, false, false, nil)
			return err
		}},
		{"bind DLQ " + dlq, func() error {
			return ch.QueueBind(dlq, cfg.DLQRoutingKey, cfg.DLXName, false, nil)
		}},
		{"declare parking lot exchange " + cfg.ParkingLotExchangeName, func() error {
			return ch.ExchangeDeclare(cfg.ParkingLotExchangeName, "direct", true, false, false, false, nil)
		}},
		{"declare parking lot queue " + cfg.ParkingLotQueueName, func() error {
			_, err := ch.QueueDeclare(cfg.ParkingLotQueueName, true, false, false, false, nil)
			return err
		}},
		{"bind parking lot queue " + cfg.ParkingLotQueueName, func() error {
			return ch.QueueBind(cfg.ParkingLotQueueName, cfg.ParkingLotRoutingKey, cfg.ParkingLotExchangeName, false, nil)
		}},
		{"declare incoming exchange " + cfg.IncomingExchangeName, func() error {
			return ch.ExchangeDeclare(cfg.IncomingExchangeName, cfg.IncomingExchangeType, true, false, false, false, nil)
		}},
		{"declare incoming queue " + cfg.IncomingQueueName, func() error {
			_, err := ch.QueueDeclare(cfg.IncomingQueueName, true, false, false, false, amqp.Table{
				"x-dead-letter-exchange":    cfg.DLXName,
				"x-dead-letter-routing-key": cfg.DLQRoutingKey,
			})
			return err
		}},
		{"bind incoming queue " + cfg.IncomingQueueName, func() error {
			return ch.QueueBind(cfg.IncomingQueueName, cfg.IncomingRoutingKey, cfg.IncomingExchangeName, false, nil)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("failed to %s: %w", step.what, err)
		}
	}
	log.Info().Str("queue", cfg.IncomingQueueName).Str("key", cfg.IncomingRoutingKey).Msg("Incoming queue declared and bound successfully")
	return ch, nil
}

// PublishOrderPlaced publishes the event on the configured outgoing topic.
func (rmq *RabbitMQManager) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	return rmq.PublishMessage(ctx, rmq.config.OutgoingTopic, event)
}

// PublishMessage sends a JSON message to the outgoing exchange and waits for the
// broker's confirm.
func (rmq *RabbitMQManager) PublishMessage(ctx context.Context, routingKey string, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	log.Debug().Str("exchange", rmq.config.OutgoingExchangeName).Str("topic", routingKey).RawJSON("body", body).Msg("Publishing message")

	return rmq.publishConfirmed(ctx, rmq.config.OutgoingExchangeName, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

func (rmq *RabbitMQManager) publishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	rmq.mu.Lock()
	defer rmq.mu.Unlock()
	if !rmq.ready || rmq.producerChan == nil {
		return ErrNotReady
	}

	if err := rmq.producerChan.Publish(exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm, ok := <-rmq.confirms:
		if !ok {
			return errors.New("producer channel closed before confirm")
		}
		if !confirm.Ack {
			return errors.New("message published but not confirmed by broker")
		}
		log.Debug().Uint64("tag", confirm.DeliveryTag).Msg("Message published and confirmed")
		return nil
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartConsuming delivers stock messages to handler until ctx is cancelled. The
// consumer is registered again after a reconnect.
func (rmq *RabbitMQManager) StartConsuming(ctx context.Context, handler contracts.MessageHandler) error {
	rmq.mu.Lock()
	rmq.consumeCtx = ctx
	rmq.handler = handler
	rmq.mu.Unlock()
	return rmq.consume()
}

func (rmq *RabbitMQManager) consume() error {
	rmq.mu.Lock()
	ch, ctx, handler := rmq.consumerChan, rmq.consumeCtx, rmq.handler
	ready := rmq.ready
	rmq.mu.Unlock()
	if handler == nil {
		return nil
	}
	if !ready || ch == nil {
		return ErrNotReady
	}

	msgs, err := ch.Consume(rmq.config.IncomingQueueName, rmq.config.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	log.Info().Str("queue", rmq.config.IncomingQueueName).Str("tag", rmq.config.ConsumerTag).Msg("Consumer started, waiting for messages...")

	proc := deliveryProcessor{
		handler:    handler,
		park:       rmq.sendToParkingLot,
		maxRetries: rmq.config.MaxProcessingRetries,
		backoff:    linearBackoff,
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping consumer.")
				return
			case d, ok := <-msgs:
				if !ok {
					log.Warn().Msg("Delivery channel was closed. Consumer restarts after reconnect.")
					return
				}
				proc.process(ctx, d)
			}
		}
	}()
	return nil
}

func (rmq *RabbitMQManager) sendToParkingLot(d amqp.Delivery) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-parking-lot-reason"] = "permanent_failure"
	headers["x-original-exchange"] = d.Exchange
	headers["x-original-routing-key"] = d.RoutingKey

	err := rmq.publishConfirmed(context.Background(), rmq.config.ParkingLotExchangeName, rmq.config.ParkingLotRoutingKey, amqp.Publishing{
		ContentType:   d.ContentType,
		CorrelationId: d.CorrelationId,
		MessageId:     d.MessageId,
		Timestamp:     time.Now(),
		DeliveryMode:  amqp.Persistent,
		Body:          d.Body,
		Headers:       headers,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to parking lot: %w", err)
	}
	log.Info().Uint64("originalDeliveryTag", d.DeliveryTag).Msg("Message sent to parking lot")
	return nil
}

func (rmq *RabbitMQManager) handleReconnect() {
	for {
		rmq.mu.Lock()
		connClosed := rmq.connClosed
		rmq.mu.Unlock()

		select {
		case <-rmq.done:
			return
		case err := <-connClosed:
			log.Error().Err(err).Msg("RabbitMQ connection lost. Attempting to reconnect...")
		}

		rmq.mu.Lock()
		rmq.ready = false
		rmq.mu.Unlock()

		if !rmq.reconnect() {
			return
		}
		if err := rmq.consume(); err != nil {
			log.Error().Err(err).Msg("Failed to restart consumer after reconnect")
		}
	}
}

// reconnect retries until connected, the attempt budget is spent or Close is called.
func (rmq *RabbitMQManager) reconnect() bool {
	for attempt := 1; rmq.config.MaxReconnectAttempts == 0 || attempt <= rmq.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-rmq.done:
			return false
		case <-time.After(rmq.config.ReconnectDelay):
		}
		log.Info().Int("attempt", attempt).Msg("Attempting RabbitMQ reconnection...")
		err := rmq.connect()
		if err == nil {
			log.Info().Msg("RabbitMQ reconnected successfully.")
			return true
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ reconnection failed")
	}
	log.Error().Int("attempts", rmq.config.MaxReconnectAttempts).Msg("Max reconnection attempts reached. Event bus stays offline.")
	return false
}

// IsReady reports whether the connection and both channels are usable.
func (rmq *RabbitMQManager) IsReady() bool {
	rmq.mu.Lock()
	defer rmq.mu.Unlock()
	return rmq.ready && rmq.connection != nil && !rmq.connection.IsClosed()
}

// Close shuts down the channels and the connection.
func (rmq *RabbitMQManager) Close() {
	rmq.closeOnce.Do(func() {
		log.Info().Msg("Closing RabbitMQ manager...")
		close(rmq.done)

		rmq.mu.Lock()
		defer rmq.mu.Unlock()
		rmq.ready = false
		if rmq.consumerChan != nil {
			if err := rmq.consumerChan.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing consumer channel")
			}
		}
		if rmq.producerChan != nil {
			if err := rmq.producerChan.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing producer channel")
			}
		}
		if rmq.connection != nil && !rmq.connection.IsClosed() {
			if err := rmq.connection.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing RabbitMQ connection")
			}
		}
		log.Info().Msg("RabbitMQ manager closed.")
	})
}
