package memqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

type fakeProcess struct {
	mu        sync.Mutex
	results   map[int]error // ошибка по номеру попытки
	executed  []domain.ScanTask
	abandoned []domain.ScanTask
	done      chan struct{}
}

func newFakeProcess(results map[int]error) *fakeProcess {
	return &fakeProcess{results: results, done: make(chan struct{}, 16)}
}

func (f *fakeProcess) Execute(_ context.Context, task domain.ScanTask) (domain.ScanStats, error) {
	f.mu.Lock()
	f.executed = append(f.executed, task)
	err := f.results[task.Attempt]
	f.mu.Unlock()
	if err == nil {
		f.done <- struct{}{}
	}
	return domain.ScanStats{}, err
}

func (f *fakeProcess) Abandon(_ context.Context, task domain.ScanTask, _ error) {
	f.mu.Lock()
	f.abandoned = append(f.abandoned, task)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeProcess) snapshot() (executed, abandoned []domain.ScanTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ScanTask(nil), f.executed...), append([]domain.ScanTask(nil), f.abandoned...)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task outcome")
	}
}

func startConsumer(t *testing.T, proc *fakeProcess, maxAttempts int) (*ScanTaskQueue, context.CancelFunc) {
	t.Helper()
	queue := NewScanTaskQueue(4)
	consumer, err := NewScanTaskConsumer(queue, proc, ConsumerConfig{
		Consumers:    2,
		RequeueDelay: time.Millisecond,
		MaxAttempts:  maxAttempts,
	}, contextkeys.NoopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = consumer.Start(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		_ = consumer.Close()
	})
	return queue, cancel
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	queue := NewScanTaskQueue(1)
	if err := queue.Enqueue(context.Background(), domain.ScanTask{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := queue.Enqueue(ctx, domain.ScanTask{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Enqueue() on full queue error = %v, want deadline exceeded", err)
	}
	if queue.Len() != 1 {
		t.Errorf("Len() = %d, want 1", queue.Len())
	}

	queue.Close()
	queue.Close()
	if err := queue.Enqueue(context.Background(), domain.ScanTask{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrQueueClosed", err)
	}
}

func TestCloseReleasesBlockedEnqueue(t *testing.T) {
	queue := NewScanTaskQueue(1)
	if err := queue.Enqueue(context.Background(), domain.ScanTask{}); err != nil {
		t.Fatal(err)
	}

	enqueueErr := make(chan error, 1)
	go func() {
		enqueueErr <- queue.Enqueue(context.Background(), domain.ScanTask{})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		queue.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() blocked behind a producer waiting on a full queue")
	}

	select {
	case err := <-enqueueErr:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("blocked Enqueue() error = %v, want ErrQueueClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue() did not return after Close()")
	}

	// поставленная до закрытия задача остается доступна, затем очередь пуста
	if _, ok := queue.dequeue(context.Background()); !ok {
		t.Error("dequeue() lost the task queued before Close()")
	}
	if _, ok := queue.dequeue(context.Background()); ok {
		t.Error("dequeue() on closed empty queue returned a task")
	}
}

func TestConsumerRequeuesRateLimitedTask(t *testing.T) {
	proc := newFakeProcess(map[int]error{
		0: &domain.RateLimitError{Attempts: 4},
	})
	queue, _ := startConsumer(t, proc, 3)

	task := domain.ScanTask{ID: uuid.New(), StreamKey: "trade_monitor"}
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc.done)

	executed, abandoned := proc.snapshot()
	if len(executed) != 2 || executed[1].Attempt != 1 || executed[1].ID != task.ID {
		t.Errorf("executed = %+v, want the same task retried with attempt 1", executed)
	}
	if len(abandoned) != 0 {
		t.Errorf("abandoned = %d tasks, want none", len(abandoned))
	}
}

func TestConsumerDropsServerErrorWithoutRetry(t *testing.T) {
	proc := newFakeProcess(map[int]error{
		0: &domain.ApiError{Kind: domain.FailureServer, StatusCode: 502},
	})
	queue, _ := startConsumer(t, proc, 3)

	if err := queue.Enqueue(context.Background(), domain.ScanTask{ID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc.done)

	executed, abandoned := proc.snapshot()
	if len(executed) != 1 || len(abandoned) != 1 {
		t.Errorf("executed = %d, abandoned = %d; want 1 and 1", len(executed), len(abandoned))
	}
}

func TestConsumerAbandonsAfterMaxAttempts(t *testing.T) {
	rateErr := &domain.RateLimitError{Attempts: 4}
	proc := newFakeProcess(map[int]error{0: rateErr, 1: rateErr, 2: rateErr})
	queue, _ := startConsumer(t, proc, 3)

	if err := queue.Enqueue(context.Background(), domain.ScanTask{ID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc.done)

	executed, abandoned := proc.snapshot()
	if len(executed) != 3 {
		t.Errorf("executed %d times, want 3", len(executed))
	}
	if len(abandoned) != 1 || abandoned[0].Attempt != 2 {
		t.Errorf("abandoned = %+v, want the third attempt", abandoned)
	}
}
