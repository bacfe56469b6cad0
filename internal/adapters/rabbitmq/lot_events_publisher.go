package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/contracts"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_producer"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LotEventsPublisherAdapter публикует LotCreatedEvent для внешних подписчиков
type LotEventsPublisherAdapter struct {
	producer   *rabbitmq_producer.Publisher
	routingKey string
	schemas    *contracts.Registry
}

var _ port.LotEventPublisherPort = (*LotEventsPublisherAdapter)(nil)

func NewLotEventsPublisherAdapter(producer *rabbitmq_producer.Publisher, routingKey string, schemas *contracts.Registry) (*LotEventsPublisherAdapter, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	if routingKey == "" {
		return nil, fmt.Errorf("rabbitmq adapter: routingKey cannot be empty")
	}
	if schemas == nil {
		return nil, fmt.Errorf("rabbitmq adapter: schema registry cannot be nil")
	}
	return &LotEventsPublisherAdapter{producer: producer, routingKey: routingKey, schemas: schemas}, nil
}

// encodeLotEvent сериализует событие и проверяет его по контракту
func encodeLotEvent(schemas *contracts.Registry, event domain.NewLotEvent) ([]byte, error) {
	body, err := json.Marshal(lotEventToDTO(event))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lot event: %w", err)
	}
	if err := schemas.Validate(constants.EventTypeLotCreated, constants.EventVersionLotCreated, body); err != nil {
		return nil, fmt.Errorf("lot event violates contract: %w", err)
	}
	return body, nil
}

func (a *LotEventsPublisherAdapter) PublishLotCreated(ctx context.Context, event domain.NewLotEvent) error {
	adapterLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "LotEventsPublisherAdapter",
		"routing_key": a.routingKey,
		"lot_id":      event.LotID,
	})

	body, err := encodeLotEvent(a.schemas, event)
	if err != nil {
		adapterLogger.Error("Lot event rejected before publishing", err, nil)
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         constants.EventTypeLotCreated,
		Headers: amqp.Table{
			"x-event-version": constants.EventVersionLotCreated,
		},
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers["x-trace-id"] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.producer.Publish(publishCtx, a.routingKey, msg); err != nil {
		return fmt.Errorf("rabbitmq adapter: failed to publish lot event %d: %w", event.LotID, err)
	}
	adapterLogger.Info("Lot created event published", port.Fields{"high_value": event.HighValue})
	return nil
}
