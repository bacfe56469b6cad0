package memqueue

import (
	"context"
	"errors"
	"sync"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

var ErrQueueClosed = errors.New("scan task queue is closed")

// ScanTaskQueue - ограниченная FIFO-очередь задач сканирования в памяти процесса.
// Несколько производителей и потребителей работают без внешней блокировки.
// Канал задач не закрывается никогда, о закрытии очереди сообщает done.
type ScanTaskQueue struct {
	tasks chan domain.ScanTask

	done      chan struct{}
	closeOnce sync.Once
}

var _ port.ScanTaskQueuePort = (*ScanTaskQueue)(nil)

func NewScanTaskQueue(capacity int) *ScanTaskQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &ScanTaskQueue{
		tasks: make(chan domain.ScanTask, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue блокируется, пока в очереди нет места. Так планировщик
// притормаживает, если обработка отстает. Закрытие очереди будит
// заблокированных производителей с ErrQueueClosed.
func (q *ScanTaskQueue) Enqueue(ctx context.Context, task domain.ScanTask) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len - число задач, ожидающих потребителя
func (q *ScanTaskQueue) Len() int {
	return len(q.tasks)
}

// Close запрещает новые задачи. Уже поставленные задачи остаются доступны потребителям.
func (q *ScanTaskQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// dequeue возвращает false, если очередь закрыта и пуста или отменен контекст
func (q *ScanTaskQueue) dequeue(ctx context.Context) (domain.ScanTask, bool) {
	select {
	case task := <-q.tasks:
		return task, true
	case <-ctx.Done():
		return domain.ScanTask{}, false
	case <-q.done:
	}

	// очередь закрыта: отдаем остаток без ожидания
	select {
	case task := <-q.tasks:
		return task, true
	default:
		return domain.ScanTask{}, false
	}
}
