package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

// TradeStoragePort атомарно сохраняет торги, лоты и исходное сообщение одного документа
type TradeStoragePort interface {
	// SaveDocument выполняет upsert в одной транзакции. Любая ошибка - *domain.PersistenceError.
	SaveDocument(ctx context.Context, msg domain.RegistryMessage, doc domain.DecodedDocument) (domain.SaveResult, error)
}
