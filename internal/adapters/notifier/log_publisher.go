package notifier

import (
	"context"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

// LogPublisher пишет новые лоты в лог. Используется, когда брокер не настроен.
type LogPublisher struct{}

var _ port.LotEventPublisherPort = LogPublisher{}

func (LogPublisher) PublishLotCreated(ctx context.Context, event domain.NewLotEvent) error {
	fields := port.Fields{
		"lot_id":       event.LotID,
		"lot_number":   event.Lot.Number,
		"trade_guid":   event.Trade.GUID.String(),
		"trade_number": event.Trade.Number,
		"score":        event.Lot.Classification.Score,
		"zone":         string(event.Lot.Classification.Zone),
		"high_value":   event.HighValue,
	}
	if event.Lot.StartPrice != nil {
		fields["start_price"] = event.Lot.StartPrice.String()
	}
	contextkeys.LoggerFromContext(ctx).Info("New lot detected", fields)
	return nil
}
