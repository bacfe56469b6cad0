package memqueue

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

	"github.com/google/uuid"
)

// ConsumerConfig - параметры потребителей in-memory очереди
type ConsumerConfig struct {
	Consumers    int
	RequeueDelay time.Duration
	MaxAttempts  int
}

// ScanTaskConsumer запускает несколько циклов-потребителей над ScanTaskQueue.
// Ошибка одной задачи не останавливает цикл: задача либо возвращается
// в очередь с задержкой, либо отбрасывается.
type ScanTaskConsumer struct {
	queue     *ScanTaskQueue
	processUC usecases_port.ProcessScanTaskPort
	cfg       ConsumerConfig
	logger    port.LoggerPort

	// задачи, ожидающие повторной постановки
	pending sync.WaitGroup
}

var _ port.EventListenerPort = (*ScanTaskConsumer)(nil)

func NewScanTaskConsumer(queue *ScanTaskQueue, processUC usecases_port.ProcessScanTaskPort, cfg ConsumerConfig, logger port.LoggerPort) (*ScanTaskConsumer, error) {
	if queue == nil {
		return nil, fmt.Errorf("memqueue consumer: queue cannot be nil")
	}
	if processUC == nil {
		return nil, fmt.Errorf("memqueue consumer: process use case cannot be nil")
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &ScanTaskConsumer{
		queue:     queue,
		processUC: processUC,
		cfg:       cfg,
		logger:    logger.WithFields(port.Fields{"component": "ScanTaskConsumer"}),
	}, nil
}

// Start блокируется, пока не отменен ctx или не закрыта очередь
func (c *ScanTaskConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting scan task consumers", port.Fields{"consumers": c.cfg.Consumers})

	var loops sync.WaitGroup
	for i := 0; i < c.cfg.Consumers; i++ {
		loops.Add(1)
		go func(id int) {
			defer loops.Done()
			c.loop(ctx, id)
		}(i)
	}
	loops.Wait()

	c.logger.Info("Scan task consumers stopped", nil)
	return nil
}

func (c *ScanTaskConsumer) loop(ctx context.Context, id int) {
	for {
		// флаг остановки проверяется между задачами
		if ctx.Err() != nil {
			return
		}
		task, ok := c.queue.dequeue(ctx)
		if !ok {
			return
		}
		c.handle(ctx, id, task)
	}
}

func (c *ScanTaskConsumer) handle(ctx context.Context, consumerID int, task domain.ScanTask) {
	traceID := uuid.New().String()
	taskLogger := c.logger.WithFields(port.Fields{
		"trace_id":    traceID,
		"consumer_id": consumerID,
		"task_id":     task.ID.String(),
		"stream":      task.StreamKey,
		"window":      fmt.Sprintf("%s..%s", task.Start.Format(time.RFC3339), task.End.Format(time.RFC3339)),
		"attempt":     task.Attempt,
	})

	taskCtx := contextkeys.ContextWithLogger(ctx, taskLogger)
	taskCtx = contextkeys.ContextWithTraceID(taskCtx, traceID)

	_, err := c.processUC.Execute(taskCtx, task)
	if err == nil {
		return
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// окно будет пройдено заново: водяной знак для него не сдвигался
		taskLogger.Warn("Scan task interrupted by shutdown", nil)
		return
	}

	if domain.ShouldRetryTask(err, task, c.cfg.MaxAttempts) {
		taskLogger.Warn("Scan task failed, requeueing", port.Fields{
			"error": err.Error(),
			"delay": c.cfg.RequeueDelay.String(),
		})
		c.requeueLater(ctx, task, err)
		return
	}

	c.processUC.Abandon(taskCtx, task, err)
}

// requeueLater возвращает задачу в очередь после RequeueDelay, не занимая цикл потребителя
func (c *ScanTaskConsumer) requeueLater(ctx context.Context, task domain.ScanTask, cause error) {
	next := task
	next.Attempt++

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		timer := time.NewTimer(c.cfg.RequeueDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := c.queue.Enqueue(ctx, next); err != nil {
			if ctx.Err() == nil {
				c.processUC.Abandon(ctx, task, fmt.Errorf("requeue failed: %w (after %v)", err, cause))
			}
		}
	}()
}

// Close дожидается отложенных повторных постановок. Start к этому моменту должен вернуться.
func (c *ScanTaskConsumer) Close() error {
	c.pending.Wait()
	return nil
}
