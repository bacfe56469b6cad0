package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

// LotNotifierPort - хук уведомлений о новых лотах. Ошибки не возвращаются:
// реализация сама логирует неудачи.
type LotNotifierPort interface {
	Notify(ctx context.Context, event domain.NewLotEvent)
}

// LotEventPublisherPort доставляет событие во внешнюю систему
type LotEventPublisherPort interface {
	PublishLotCreated(ctx context.Context, event domain.NewLotEvent) error
}
