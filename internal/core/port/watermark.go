package port

import (
	"context"
	"time"
)

// WatermarkRepositoryPort хранит дату последней обработки по ключу потока
type WatermarkRepositoryPort interface {
	// Get возвращает нулевое время, если для ключа еще нет записи
	Get(ctx context.Context, taskKey string) (time.Time, error)
	Set(ctx context.Context, taskKey string, processedAt time.Time) error
}
