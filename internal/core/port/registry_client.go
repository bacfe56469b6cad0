package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

// RegistryClientPort - аутентифицированный доступ к реестру с ограничением частоты запросов
type RegistryClientPort interface {
	// Authenticate получает новый токен. Ошибка - *domain.AuthenticationError.
	Authenticate(ctx context.Context) error

	// FetchMessagesPage возвращает одну страницу сообщений за [Start, End]
	FetchMessagesPage(ctx context.Context, query domain.PageQuery) (*domain.MessagePage, error)

	// GetMessage возвращает одно сообщение вместе с контентом
	GetMessage(ctx context.Context, guid uuid.UUID) (*domain.RegistryMessage, error)

	// GetLinkedMessages возвращает сообщения, связанные с указанным
	GetLinkedMessages(ctx context.Context, guid uuid.UUID) ([]domain.RegistryMessage, error)

	// Close освобождает пул соединений. Повторный вызов безопасен.
	Close() error
}
