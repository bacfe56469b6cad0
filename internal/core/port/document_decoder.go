package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

// DocumentDecoderPort разбирает XML-контент одного сообщения.
// Реализация не имеет состояния и не выполняет ввод-вывод.
type DocumentDecoderPort interface {
	Decode(msg domain.RegistryMessage) (domain.DecodedDocument, error)
}

// DecodeResult - результат декодирования, переданный из пула обратно вызывающему
type DecodeResult struct {
	Document domain.DecodedDocument
	Err      error
}

// DecodePoolPort передает декодирование в ограниченный пул воркеров.
// Submit не блокирует вызывающего дольше, чем нужно для постановки в очередь пула;
// результат приходит в возвращенный канал ровно один раз.
type DecodePoolPort interface {
	Submit(ctx context.Context, msg domain.RegistryMessage) (<-chan DecodeResult, error)
	Close() error
}
