package rabbitmq_consumer

import (
	"context"
	"fmt"
	"time"

	"fedresurs-radar/pkg/rabbitmq/rabbitmq_common"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler обрабатывает одно сообщение. nil - Ack, ошибка - ретрай
// через wait-очередь или финальный DLX, если ретраи исчерпаны.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// DistributingConsumer раздает сообщения обработчикам в отдельных горутинах
type DistributingConsumer struct {
	base    *baseConsumer
	handler MessageHandler
	slots   chan struct{}
}

// NewDistributingConsumer создает потребителя и объявляет его топологию
func NewDistributingConsumer(cfg ConsumerConfig, handler MessageHandler, connManager *rabbitmq_common.ConnectionManager) (*DistributingConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("distributing consumer: message handler is required")
	}

	bc, err := newBaseConsumer(cfg, connManager)
	if err != nil {
		return nil, fmt.Errorf("distributing consumer: %w", err)
	}

	limit := cfg.PrefetchCount
	if limit <= 0 {
		limit = 1
	}

	return &DistributingConsumer{
		base:    bc,
		handler: handler,
		slots:   make(chan struct{}, limit),
	}, nil
}

// QueueName - фактическое имя очереди
func (c *DistributingConsumer) QueueName() string {
	return c.base.queueName
}

// StartConsuming блокируется до отмены ctx или закрытия соединения
func (c *DistributingConsumer) StartConsuming(ctx context.Context) error {
	b := c.base
	if b.channel == nil || b.channel.IsClosed() {
		return fmt.Errorf("distributing consumer: channel is closed")
	}

	msgs, err := b.channel.Consume(b.queueName, b.config.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("distributing consumer: failed to consume from '%s': %w", b.queueName, err)
	}
	b.logger.Info("Waiting for messages", "queue", b.queueName)

	notifyClose := b.connection.NotifyClose(make(chan *amqp.Error, 1))

	for {
		// отмена проверяется до того, как занять слот под новое сообщение
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping consumption", "queue", b.queueName)
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping consumption", "queue", b.queueName)
			return nil

		case amqpErr := <-notifyClose:
			if amqpErr == nil {
				return fmt.Errorf("distributing consumer: connection closed")
			}
			b.logger.Error(amqpErr, "Connection closed", "queue", b.queueName)
			return amqpErr

		case d, ok := <-msgs:
			if !ok {
				b.logger.Info("Deliveries channel closed", "queue", b.queueName)
				return nil
			}

			c.slots <- struct{}{}
			b.wg.Add(1)
			go func(delivery amqp.Delivery) {
				defer b.wg.Done()
				defer func() { <-c.slots }()
				c.dispatch(ctx, delivery)
			}(d)
		}
	}
}

func (c *DistributingConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	b := c.base

	// обработчик доводит начатую работу до конца даже при остановке
	handlerErr := c.handler(context.WithoutCancel(ctx), d)
	if handlerErr == nil {
		_ = d.Ack(false)
		b.logger.Debug("Message acked", "delivery_tag", d.DeliveryTag)
		return
	}

	b.logger.Warn("Handler returned error", "delivery_tag", d.DeliveryTag, "error", handlerErr.Error())

	if !b.config.EnableRetryMechanism {
		_ = d.Nack(false, false)
		return
	}

	deaths := DeathCount(d, b.queueName)
	if deaths < int64(b.config.MaxRetries) {
		b.logger.Info("Retrying message", "delivery_tag", d.DeliveryTag, "death_count", deaths)
		_ = d.Nack(false, false)
		return
	}

	b.logger.Warn("Max retries reached, publishing to final DLX", "delivery_tag", d.DeliveryTag)
	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := b.finalDlxPublisher.Publish(pubCtx, b.config.FinalDLQRoutingKey, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      d.Headers,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		b.logger.Error(err, "Failed to publish to final DLX, sending back to retry loop", "delivery_tag", d.DeliveryTag)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close дожидается активных обработчиков и закрывает канал
func (c *DistributingConsumer) Close() error {
	return c.base.Close()
}
