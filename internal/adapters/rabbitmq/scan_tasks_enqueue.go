package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_producer"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ScanTaskQueueAdapter реализует ScanTaskQueuePort поверх RabbitMQ
type ScanTaskQueueAdapter struct {
	producer   *rabbitmq_producer.Publisher
	routingKey string
}

var _ port.ScanTaskQueuePort = (*ScanTaskQueueAdapter)(nil)

func NewScanTaskQueueAdapter(producer *rabbitmq_producer.Publisher, routingKey string) (*ScanTaskQueueAdapter, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	if routingKey == "" {
		return nil, fmt.Errorf("rabbitmq adapter: routingKey cannot be empty")
	}
	return &ScanTaskQueueAdapter{producer: producer, routingKey: routingKey}, nil
}

// Enqueue публикует задачу сканирования
func (a *ScanTaskQueueAdapter) Enqueue(ctx context.Context, task domain.ScanTask) error {
	adapterLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "ScanTaskQueueAdapter",
		"routing_key": a.routingKey,
		"task_id":     task.ID.String(),
	})

	body, err := json.Marshal(scanTaskToDTO(task))
	if err != nil {
		return fmt.Errorf("rabbitmq adapter: failed to marshal scan task: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      make(amqp.Table),
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers["x-trace-id"] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.producer.Publish(publishCtx, a.routingKey, msg); err != nil {
		adapterLogger.Error("Failed to publish scan task", err, nil)
		return fmt.Errorf("rabbitmq adapter: failed to publish scan task %s: %w", task.ID, err)
	}

	adapterLogger.Debug("Scan task published", nil)
	return nil
}
