package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

// ScanTaskQueuePort - очередь задач сканирования. Enqueue блокируется,
// пока в очереди нет места, или до отмены контекста.
type ScanTaskQueuePort interface {
	Enqueue(ctx context.Context, task domain.ScanTask) error
}
