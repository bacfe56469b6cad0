package usecases_port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
	"time"
)

type ScheduleScanPort interface {
	// Execute запускает проход потока от водяного знака до текущего момента.
	// Возвращает количество поставленных в очередь задач.
	Execute(ctx context.Context, stream domain.ScanStream) (int, error)

	// Backfill ставит задачи на произвольный диапазон, не двигая водяной знак
	Backfill(ctx context.Context, stream domain.ScanStream, from, to time.Time) (int, error)
}
