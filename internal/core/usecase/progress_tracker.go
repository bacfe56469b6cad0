package usecase

import (
	"context"
	"sync"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/google/uuid"
)

const watermarkWriteTimeout = 5 * time.Second

type windowState int

const (
	windowPending windowState = iota
	windowDone
	windowFailed
)

// scanPass - один проход планировщика по потоку
type scanPass struct {
	id        uuid.UUID
	windows   []domain.Window
	states    []windowState
	committed int // длина закоммиченного префикса
	startedAt time.Time
}

func (p *scanPass) settled() bool {
	for _, s := range p.states {
		if s == windowPending {
			return false
		}
	}
	return true
}

// ProgressTracker двигает водяной знак потока только до конца самого длинного
// непрерывного префикса успешно обработанных окон текущего прохода.
// Задачи завершаются в любом порядке, поэтому окно, закрытое раньше соседа слева,
// ждет, пока префикс до него дойдет.
type ProgressTracker struct {
	watermarks port.WatermarkRepositoryPort
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	passes map[string]*scanPass
}

var _ port.ScanProgressPort = (*ProgressTracker)(nil)

// NewProgressTracker создает трекер. Проход старше staleAfter
// больше не блокирует запуск следующего.
func NewProgressTracker(watermarks port.WatermarkRepositoryPort, staleAfter time.Duration) *ProgressTracker {
	return &ProgressTracker{
		watermarks: watermarks,
		staleAfter: staleAfter,
		now:        time.Now,
		passes:     make(map[string]*scanPass),
	}
}

// BeginPass регистрирует новый проход. Возвращает domain.ErrPassInFlight,
// если предыдущий проход потока еще не завершен и не устарел.
func (t *ProgressTracker) BeginPass(streamKey string, windows []domain.Window) (uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlightLocked(streamKey) {
		return uuid.Nil, domain.ErrPassInFlight
	}

	pass := &scanPass{
		id:        uuid.New(),
		windows:   append([]domain.Window(nil), windows...),
		states:    make([]windowState, len(windows)),
		startedAt: t.now(),
	}
	t.passes[streamKey] = pass
	return pass.id, nil
}

// InFlight сообщает, есть ли у потока незавершенный и не устаревший проход
func (t *ProgressTracker) InFlight(streamKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlightLocked(streamKey)
}

func (t *ProgressTracker) inFlightLocked(streamKey string) bool {
	pass, ok := t.passes[streamKey]
	if !ok {
		return false
	}
	if t.staleAfter > 0 && t.now().Sub(pass.startedAt) > t.staleAfter {
		return false
	}
	return !pass.settled()
}

// Complete фиксирует исход задачи. Задачи чужих или устаревших проходов
// (в том числе ручной backfill с нулевым PassID) водяной знак не двигают.
func (t *ProgressTracker) Complete(ctx context.Context, task domain.ScanTask, success bool) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "ProgressTracker",
		"stream":    task.StreamKey,
		"pass_id":   task.PassID.String(),
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	pass, ok := t.passes[task.StreamKey]
	if !ok || task.PassID == uuid.Nil || pass.id != task.PassID {
		logger.Debug("Task outcome does not belong to the current pass, watermark untouched", nil)
		return
	}

	idx := -1
	for i, w := range pass.windows {
		if w.Start.Equal(task.Start) && w.End.Equal(task.End) {
			idx = i
			break
		}
	}
	if idx < 0 {
		logger.Warn("Task window is not part of the current pass", port.Fields{"start": task.Start, "end": task.End})
		return
	}

	if success {
		pass.states[idx] = windowDone
	} else {
		pass.states[idx] = windowFailed
	}

	t.advanceLocked(ctx, task.StreamKey, pass, logger)

	if pass.settled() {
		delete(t.passes, task.StreamKey)
		logger.Info("Scan pass settled", port.Fields{
			"windows":   len(pass.windows),
			"committed": pass.committed,
		})
	}
}

// CancelRemaining помечает окна с индекса from как неуспешные.
// Вызывается, когда планировщик не смог поставить остаток прохода в очередь.
func (t *ProgressTracker) CancelRemaining(ctx context.Context, streamKey string, passID uuid.UUID, from int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pass, ok := t.passes[streamKey]
	if !ok || pass.id != passID {
		return
	}
	cancelled := 0
	for i := max(from, 0); i < len(pass.states); i++ {
		if pass.states[i] == windowPending {
			pass.states[i] = windowFailed
			cancelled++
		}
	}
	contextkeys.LoggerFromContext(ctx).Warn("Unscheduled windows of the pass marked as failed", port.Fields{
		"stream":    streamKey,
		"pass_id":   passID.String(),
		"cancelled": cancelled,
	})
	if pass.settled() {
		delete(t.passes, streamKey)
	}
}

// advanceLocked сдвигает префикс и сохраняет водяной знак.
// Запись идет под мьютексом, чтобы водяные знаки одного потока писались по порядку.
func (t *ProgressTracker) advanceLocked(ctx context.Context, streamKey string, pass *scanPass, logger port.LoggerPort) {
	before := pass.committed
	for pass.committed < len(pass.states) && pass.states[pass.committed] == windowDone {
		pass.committed++
	}
	if pass.committed == before {
		return
	}

	watermark := pass.windows[pass.committed-1].End
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), watermarkWriteTimeout)
	defer cancel()
	if err := t.watermarks.Set(setCtx, streamKey, watermark); err != nil {
		// несохраненный знак приводит только к повторному сканированию окон
		logger.Error("Failed to persist watermark", err, port.Fields{"watermark": watermark})
		return
	}
	logger.Info("Watermark advanced", port.Fields{"watermark": watermark})
}
