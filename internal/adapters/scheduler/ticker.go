package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
)

// StreamTicker запускает проход планировщика для каждого включенного потока:
// один раз при старте и затем каждые interval
type StreamTicker struct {
	scheduleUC usecases_port.ScheduleScanPort
	streams    []domain.ScanStream
	interval   time.Duration
	logger     port.LoggerPort

	wg sync.WaitGroup
}

var _ port.EventListenerPort = (*StreamTicker)(nil)

func NewStreamTicker(
	scheduleUC usecases_port.ScheduleScanPort,
	streams []domain.ScanStream,
	interval time.Duration,
	logger port.LoggerPort,
) (*StreamTicker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %s", interval)
	}
	return &StreamTicker{
		scheduleUC: scheduleUC,
		streams:    append([]domain.ScanStream(nil), streams...),
		interval:   interval,
		logger:     logger.WithFields(port.Fields{"component": "StreamTicker"}),
	}, nil
}

// Start блокируется до отмены контекста
func (t *StreamTicker) Start(ctx context.Context) error {
	if len(t.streams) == 0 {
		t.logger.Warn("No scan streams enabled, ticker is idle", nil)
	}
	for _, stream := range t.streams {
		t.wg.Add(1)
		go func(stream domain.ScanStream) {
			defer t.wg.Done()
			t.loop(ctx, stream)
		}(stream)
	}
	t.wg.Wait()
	return nil
}

func (t *StreamTicker) loop(ctx context.Context, stream domain.ScanStream) {
	streamLogger := t.logger.WithFields(port.Fields{"stream": stream.Key})
	streamLogger.Info("Stream ticker started", port.Fields{"interval": t.interval.String()})

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.runPass(ctx, stream, streamLogger)

		select {
		case <-ctx.Done():
			streamLogger.Info("Stream ticker stopped", nil)
			return
		case <-ticker.C:
		}
	}
}

func (t *StreamTicker) runPass(ctx context.Context, stream domain.ScanStream, logger port.LoggerPort) {
	passCtx, traceID := contextkeys.EnsureTraceID(ctx)
	passLogger := logger.WithFields(port.Fields{"trace_id": traceID})
	passCtx = contextkeys.ContextWithLogger(passCtx, passLogger)

	enqueued, err := t.scheduleUC.Execute(passCtx, stream)
	switch {
	case err == nil:
		passLogger.Info("Scan pass scheduled", port.Fields{"enqueued": enqueued})
	case errors.Is(err, domain.ErrPassInFlight):
		passLogger.Info("Scan pass skipped, previous one is still running", nil)
	case ctx.Err() != nil:
		passLogger.Warn("Scan pass interrupted by shutdown", port.Fields{"enqueued": enqueued})
	default:
		passLogger.Error("Scan pass failed", err, port.Fields{"enqueued": enqueued})
	}
}

// Close дожидается завершения циклов. Сами циклы останавливает отмена контекста Start.
func (t *StreamTicker) Close() error {
	t.wg.Wait()
	return nil
}
