package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_common"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_consumer"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ScanTasksConsumerAdapter читает задачи сканирования из RabbitMQ.
// Повторы выполняет брокер через wait-очередь, номер попытки - счетчик x-death.
type ScanTasksConsumerAdapter struct {
	consumer    rabbitmq_consumer.Consumer
	processUC   usecases_port.ProcessScanTaskPort
	queueName   string
	maxAttempts int
	logger      port.LoggerPort
}

var _ port.EventListenerPort = (*ScanTasksConsumerAdapter)(nil)

func NewScanTasksConsumerAdapter(
	consumerCfg rabbitmq_consumer.ConsumerConfig,
	processUC usecases_port.ProcessScanTaskPort,
	logger port.LoggerPort,
	connManager *rabbitmq_common.ConnectionManager,
) (*ScanTasksConsumerAdapter, error) {
	adapter := &ScanTasksConsumerAdapter{
		processUC:   processUC,
		queueName:   consumerCfg.QueueName,
		maxAttempts: consumerCfg.MaxRetries + 1,
		logger:      logger.WithFields(port.Fields{"component": "ScanTasksConsumerAdapter"}),
	}

	pkgLogger := logger.WithFields(port.Fields{"component": "rabbitmq_distributing_consumer", "consumer_tag": consumerCfg.ConsumerTag})
	consumerCfg.Logger = NewPkgLoggerBridge(pkgLogger)

	consumer, err := rabbitmq_consumer.NewDistributingConsumer(consumerCfg, adapter.messageHandler, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ consumer for scan tasks: %w", err)
	}
	adapter.consumer = consumer
	adapter.queueName = consumer.QueueName()

	return adapter, nil
}

// messageHandler: nil - Ack, ошибка - повтор через wait-очередь
// или финальный DLQ, если попытки исчерпаны
func (a *ScanTasksConsumerAdapter) messageHandler(ctx context.Context, d amqp.Delivery) error {
	traceID, ok := d.Headers["x-trace-id"].(string)
	if !ok || traceID == "" {
		traceID = uuid.New().String()
	}

	var dto ScanTaskDTO
	if err := json.Unmarshal(d.Body, &dto); err != nil {
		a.logger.Error("Error unmarshalling scan task, dropping message", err, port.Fields{"trace_id": traceID})
		// повтор не исправит битое тело
		return nil
	}

	task := dto.toDomain(int(rabbitmq_consumer.DeathCount(d, a.queueName)))
	return a.handleTask(ctx, traceID, task)
}

func (a *ScanTasksConsumerAdapter) handleTask(ctx context.Context, traceID string, task domain.ScanTask) error {
	taskLogger := a.logger.WithFields(port.Fields{
		"trace_id": traceID,
		"task_id":  task.ID.String(),
		"stream":   task.StreamKey,
		"attempt":  task.Attempt,
	})
	ctx = contextkeys.ContextWithLogger(ctx, taskLogger)
	ctx = contextkeys.ContextWithTraceID(ctx, traceID)

	_, err := a.processUC.Execute(ctx, task)
	if err == nil {
		return nil
	}

	if domain.ShouldRetryTask(err, task, a.maxAttempts) {
		taskLogger.Warn("Scan task failed, returning to broker for retry", port.Fields{"error": err.Error()})
		return err
	}

	a.processUC.Abandon(ctx, task, err)
	if domain.ClassifyTaskError(err) == domain.DispositionRetry {
		// попытки исчерпаны: сообщение уйдет в финальный DLQ для разбора
		return err
	}
	return nil
}

// Start реализует EventListenerPort
func (a *ScanTasksConsumerAdapter) Start(ctx context.Context) error {
	return a.consumer.StartConsuming(ctx)
}

// Close реализует EventListenerPort
func (a *ScanTasksConsumerAdapter) Close() error {
	return a.consumer.Close()
}
