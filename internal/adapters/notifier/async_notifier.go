package notifier

import (
	"context"
	"sync"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

const publishTimeout = 10 * time.Second

// структура для передачи в канал
type eventWithContext struct {
	ctx   context.Context
	event domain.NewLotEvent
}

// AsyncLotNotifier - реализация LotNotifierPort. Notify только кладет событие
// в буфер, доставкой занимается отдельная горутина-диспетчер.
type AsyncLotNotifier struct {
	publisher port.LotEventPublisherPort
	eventChan chan eventWithContext
	logger    port.LoggerPort

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ port.LotNotifierPort = (*AsyncLotNotifier)(nil)

// NewAsyncLotNotifier создает нотификатор и запускает диспетчер
func NewAsyncLotNotifier(publisher port.LotEventPublisherPort, bufferSize int, baseLogger port.LoggerPort) *AsyncLotNotifier {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	n := &AsyncLotNotifier{
		publisher: publisher,
		eventChan: make(chan eventWithContext, bufferSize),
		logger:    baseLogger.WithFields(port.Fields{"component": "AsyncLotNotifier"}),
		done:      make(chan struct{}),
	}
	go n.dispatcher()
	return n
}

func (n *AsyncLotNotifier) dispatcher() {
	defer close(n.done)
	n.logger.Debug("Notifier dispatcher started", nil)

	for pkg := range n.eventChan {
		event := pkg.event
		eventLogger := contextkeys.LoggerFromContext(pkg.ctx).WithFields(port.Fields{
			"component":  "AsyncLotNotifier.dispatcher",
			"lot_id":     event.LotID,
			"trade_guid": event.Trade.GUID.String(),
			"high_value": event.HighValue,
		})

		ctx, cancel := context.WithTimeout(context.WithoutCancel(pkg.ctx), publishTimeout)
		if err := n.publisher.PublishLotCreated(ctx, event); err != nil {
			eventLogger.Error("Failed to deliver new lot notification", err, nil)
		} else {
			eventLogger.Debug("New lot notification delivered", nil)
		}
		cancel()
	}
}

// Notify не блокируется: при переполненном буфере событие пишется в лог и отбрасывается
func (n *AsyncLotNotifier) Notify(ctx context.Context, event domain.NewLotEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	logger := contextkeys.LoggerFromContext(ctx)
	if n.closed {
		logger.Warn("Notifier is closed, new lot event dropped", port.Fields{"lot_id": event.LotID})
		return
	}

	select {
	case n.eventChan <- eventWithContext{ctx: ctx, event: event}:
	default:
		logger.Warn("Notification buffer is full, new lot event dropped", port.Fields{"lot_id": event.LotID})
	}
}

// Close перестает принимать события и дожидается доставки уже буферизованных
func (n *AsyncLotNotifier) Close() error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.eventChan)
	}
	n.mu.Unlock()

	<-n.done
	return nil
}
