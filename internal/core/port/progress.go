package port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

// ScanProgressPort получает финальный исход каждой задачи сканирования
// и по нему двигает водяной знак потока
type ScanProgressPort interface {
	Complete(ctx context.Context, task domain.ScanTask, success bool)
}
