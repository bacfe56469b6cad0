package usecase

import (
	"context"
	"time"

	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
)

type ReadScanStateUseCase struct {
	watermarks port.WatermarkRepositoryPort
	progress   *ProgressTracker
}

var _ usecases_port.ReadScanStatePort = (*ReadScanStateUseCase)(nil)

func NewReadScanStateUseCase(watermarks port.WatermarkRepositoryPort, progress *ProgressTracker) *ReadScanStateUseCase {
	return &ReadScanStateUseCase{watermarks: watermarks, progress: progress}
}

func (uc *ReadScanStateUseCase) Execute(ctx context.Context, taskKey string) (time.Time, bool, error) {
	watermark, err := uc.watermarks.Get(ctx, taskKey)
	if err != nil {
		return time.Time{}, false, err
	}
	return watermark, uc.progress.InFlight(taskKey), nil
}
