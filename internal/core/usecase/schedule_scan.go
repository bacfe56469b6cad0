package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"

	"github.com/google/uuid"
)

// ScheduleConfig - параметры скользящего окна
type ScheduleConfig struct {
	Step            time.Duration
	Overlap         time.Duration
	InitialLookback time.Duration
	PacingDelay     time.Duration
}

// ScheduleScanUseCase режет диапазон от водяного знака до текущего момента
// на допустимые для реестра окна и ставит по задаче на окно.
// О документах и лотах он ничего не знает.
type ScheduleScanUseCase struct {
	queue      port.ScanTaskQueuePort
	watermarks port.WatermarkRepositoryPort
	progress   *ProgressTracker
	cfg        ScheduleConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ usecases_port.ScheduleScanPort = (*ScheduleScanUseCase)(nil)

func NewScheduleScanUseCase(
	queue port.ScanTaskQueuePort,
	watermarks port.WatermarkRepositoryPort,
	progress *ProgressTracker,
	cfg ScheduleConfig,
) *ScheduleScanUseCase {
	return &ScheduleScanUseCase{
		queue:      queue,
		watermarks: watermarks,
		progress:   progress,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Execute начинает проход с watermark - Overlap: последние уже покрытые дни
// проходятся заново, так что окно, отброшенное после 5xx, будет пересканировано.
func (uc *ScheduleScanUseCase) Execute(ctx context.Context, stream domain.ScanStream) (int, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "ScheduleScan",
		"stream":   stream.Key,
	})

	watermark, err := uc.watermarks.Get(ctx, stream.Key)
	if err != nil {
		return 0, fmt.Errorf("read watermark of %s: %w", stream.Key, err)
	}

	now := uc.now().UTC()
	from := now.Add(-uc.cfg.InitialLookback)
	if !watermark.IsZero() {
		from = watermark.UTC().Add(-uc.cfg.Overlap)
	}

	windows := domain.SplitWindow(from, now, uc.cfg.Step)
	if len(windows) == 0 {
		ucLogger.Info("Nothing to scan, watermark is up to date", port.Fields{"watermark": watermark})
		return 0, nil
	}

	passID, err := uc.progress.BeginPass(stream.Key, windows)
	if err != nil {
		if errors.Is(err, domain.ErrPassInFlight) {
			ucLogger.Info("Previous pass is still running, skipping", nil)
		}
		return 0, err
	}

	ucLogger.Info("Starting scan pass", port.Fields{
		"pass_id":   passID.String(),
		"from":      from,
		"to":        now,
		"windows":   len(windows),
		"watermark": watermark,
	})

	enqueued, err := uc.enqueueWindows(ctx, stream, passID, windows)
	if err != nil {
		uc.progress.CancelRemaining(ctx, stream.Key, passID, enqueued)
		ucLogger.Error("Scan pass enqueued partially", err, port.Fields{"enqueued": enqueued})
		return enqueued, err
	}
	return enqueued, nil
}

// Backfill ставит задачи на произвольный диапазон. Задачи идут без прохода,
// поэтому водяной знак не трогают.
func (uc *ScheduleScanUseCase) Backfill(ctx context.Context, stream domain.ScanStream, from, to time.Time) (int, error) {
	if !from.Before(to) {
		return 0, fmt.Errorf("%w: from %s is not before to %s", domain.ErrInvalidRange, from, to)
	}
	windows := domain.SplitWindow(from.UTC(), to.UTC(), uc.cfg.Step)

	contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"use_case": "ScheduleScan", "stream": stream.Key}).
		Info("Starting backfill", port.Fields{"from": from, "to": to, "windows": len(windows)})

	return uc.enqueueWindows(ctx, stream, uuid.Nil, windows)
}

// enqueueWindows возвращает число поставленных задач.
// Между постановками выдерживается PacingDelay.
func (uc *ScheduleScanUseCase) enqueueWindows(ctx context.Context, stream domain.ScanStream, passID uuid.UUID, windows []domain.Window) (int, error) {
	for i, w := range windows {
		if i > 0 && uc.cfg.PacingDelay > 0 {
			if err := uc.sleep(ctx, uc.cfg.PacingDelay); err != nil {
				return i, err
			}
		}

		task := domain.ScanTask{
			ID:        uuid.New(),
			PassID:    passID,
			StreamKey: stream.Key,
			Source:    stream.Source,
			Types:     append([]string(nil), stream.Types...),
			Start:     w.Start,
			End:       w.End,
		}
		if err := uc.queue.Enqueue(ctx, task); err != nil {
			return i, fmt.Errorf("enqueue window %s..%s: %w", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), err)
		}
	}
	return len(windows), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
