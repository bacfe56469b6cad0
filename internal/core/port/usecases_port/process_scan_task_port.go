package usecases_port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

type ProcessScanTaskPort interface {
	Execute(ctx context.Context, task domain.ScanTask) (domain.ScanStats, error)

	// Abandon фиксирует окончательную неудачу задачи после всех повторов
	Abandon(ctx context.Context, task domain.ScanTask, cause error)
}
