package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"fedresurs-radar/internal/adapters/efrsbclient"
	logger_adapter "fedresurs-radar/internal/adapters/logger"
	"fedresurs-radar/internal/adapters/memqueue"
	"fedresurs-radar/internal/adapters/notifier"
	postgres_adapter "fedresurs-radar/internal/adapters/postgres"
	rabbitmq_adapter "fedresurs-radar/internal/adapters/rabbitmq"
	"fedresurs-radar/internal/adapters/rest"
	"fedresurs-radar/internal/adapters/scheduler"
	"fedresurs-radar/internal/adapters/semanticfilter"
	"fedresurs-radar/internal/adapters/xmldecoder"
	"fedresurs-radar/internal/configs"
	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/contracts"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/usecase"
	fluentlogger "fedresurs-radar/pkg/fluent_logger"
	"fedresurs-radar/pkg/postgres"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_common"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_consumer"
	"fedresurs-radar/pkg/rabbitmq/rabbitmq_producer"
	"fedresurs-radar/schemas"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

type App struct {
	config *configs.AppConfig

	dbPool       *pgxpool.Pool
	client       *efrsbclient.EfrsbClientAdapter
	decodePool   *xmldecoder.DecodePool
	lotNotifier  *notifier.AsyncLotNotifier
	apiServer    *rest.Server
	ticker       *scheduler.StreamTicker
	taskListener port.EventListenerPort
	memQueue     *memqueue.ScanTaskQueue

	connManager *rabbitmq_common.ConnectionManager
	publisher   *rabbitmq_producer.Publisher

	logger       port.LoggerPort
	fluentClient *fluent.Fluent
}

func NewApp() (*App, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	// --- 1. ЛОГГЕРЫ ---
	var activeLoggers []port.LoggerPort

	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{
		Level:    parseLogLevel(appConfig.StdoutLogger.Level),
		IsJSON:   appConfig.StdoutLogger.IsJSON,
		UseColor: !appConfig.StdoutLogger.IsJSON,
	})
	activeLoggers = append(activeLoggers, stdoutLogger)

	var fluentClient *fluent.Fluent
	if appConfig.FluentBit.Enabled {
		fluentClient, err = fluentlogger.NewClient(fluentlogger.Config{
			Host:      appConfig.FluentBit.Host,
			Port:      appConfig.FluentBit.Port,
			TagPrefix: appConfig.AppName,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return nil, fmt.Errorf("failed to create fluentbit client: %w", err)
		}

		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(fluentClient, parseLogLevel(appConfig.FluentBit.Level))
		if err != nil {
			_ = fluentClient.Close()
			return nil, err
		}
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return nil, fmt.Errorf("failed to create multi-logger: %w", err)
	}

	baseLogger := multiLogger.WithFields(port.Fields{"service_name": appConfig.AppName})
	appLogger := baseLogger.WithFields(port.Fields{"component": "app"})
	appLogger.Info("Logger system initialized", port.Fields{
		"active_loggers": len(activeLoggers), "fluent_enabled": appConfig.FluentBit.Enabled,
	})

	app := &App{config: appConfig, logger: appLogger, fluentClient: fluentClient}
	if err := app.wire(baseLogger); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

// wire собирает зависимости. При ошибке уже созданные ресурсы закрывает вызывающий.
func (a *App) wire(baseLogger port.LoggerPort) error {
	cfg := a.config
	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// --- 2. ХРАНИЛИЩЕ ---
	dbPool, err := postgres.NewClient(startupCtx, postgres.Config{
		DatabaseURL: cfg.Database.URL,
		MaxConns:    int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	a.dbPool = dbPool
	if err := postgres_adapter.EnsureSchema(startupCtx, dbPool); err != nil {
		return fmt.Errorf("failed to apply database schema: %w", err)
	}
	a.logger.Info("Successfully connected to PostgreSQL pool!", nil)

	tradeStorage, err := postgres_adapter.NewPostgresTradeStorageAdapter(dbPool)
	if err != nil {
		return err
	}
	watermarks, err := postgres_adapter.NewPostgresWatermarkAdapter(dbPool)
	if err != nil {
		return err
	}

	// --- 3. КЛИЕНТ РЕЕСТРА ---
	schemaRegistry, err := contracts.NewRegistry(schemas.SchemasFS)
	if err != nil {
		return fmt.Errorf("failed to load contract schemas: %w", err)
	}

	client, err := efrsbclient.NewEfrsbClientAdapter(efrsbclient.Config{
		BaseURL:            cfg.Registry.BaseURL,
		Login:              cfg.Registry.Login,
		Password:           cfg.Registry.Password,
		RequestsPerSecond:  cfg.Registry.RequestsPerSecond,
		Burst:              cfg.Registry.Burst,
		MaxRetries:         cfg.Registry.MaxRetries,
		BackoffFactor:      cfg.Registry.BackoffFactor,
		NetworkBackoffBase: cfg.Registry.NetworkBackoffBase,
		RequestTimeout:     cfg.Registry.RequestTimeout,
		TokenTTL:           cfg.Registry.TokenTTL,
		Parallelism:        cfg.Registry.Parallelism,
	}, schemaRegistry)
	if err != nil {
		return err
	}
	a.client = client

	// неверные учетные данные - фатальная ошибка конфигурации, сетевой сбой нет
	authCtx := contextkeys.ContextWithLogger(startupCtx, baseLogger)
	if err := client.Authenticate(authCtx); err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			return fmt.Errorf("registry rejected credentials: %w", err)
		}
		a.logger.Warn("Registry is unreachable at startup, will authenticate on first request", port.Fields{"error": err.Error()})
	} else {
		a.logger.Info("Authenticated against registry", port.Fields{"base_url": cfg.Registry.BaseURL})
	}

	// --- 4. ДЕКОДИРОВАНИЕ, ФИЛЬТР, УВЕДОМЛЕНИЯ ---
	a.decodePool = xmldecoder.NewDecodePool(xmldecoder.NewXMLDecoderAdapter(), cfg.Scan.DecodeWorkers)

	filter := semanticfilter.NewSemanticFilterAdapter(semanticfilter.Config{
		TargetCodes:     cfg.Filter.TargetCodes,
		IncludeKeywords: cfg.Filter.IncludeKeywords,
		ExcludeKeywords: cfg.Filter.ExcludeKeywords,
	})
	classifier := semanticfilter.NewKeywordClassifierAdapter()

	if cfg.Scan.QueueBackend == constants.QueueBackendRabbitMQ || cfg.RabbitMQ.PublishLotEvents {
		if err := a.connectRabbitMQ(baseLogger); err != nil {
			return err
		}
	}

	var lotPublisher port.LotEventPublisherPort = notifier.LogPublisher{}
	if cfg.RabbitMQ.PublishLotEvents {
		lotPublisher, err = rabbitmq_adapter.NewLotEventsPublisherAdapter(a.publisher, constants.RoutingKeyLotCreated, schemaRegistry)
		if err != nil {
			return err
		}
	}
	a.lotNotifier = notifier.NewAsyncLotNotifier(lotPublisher, 256, baseLogger)

	// --- 5. USE CASES ---
	progress := usecase.NewProgressTracker(watermarks, 4*cfg.Scan.Interval)
	ingestUC := usecase.NewIngestDocumentUseCase(filter, classifier, tradeStorage, a.lotNotifier)
	processUC := usecase.NewProcessScanTaskUseCase(client, a.decodePool, ingestUC, progress, cfg.Registry.PageLimit)
	reingestUC := usecase.NewReingestMessageUseCase(client, a.decodePool, ingestUC)
	readStateUC := usecase.NewReadScanStateUseCase(watermarks, progress)

	var queue port.ScanTaskQueuePort
	switch cfg.Scan.QueueBackend {
	case constants.QueueBackendRabbitMQ:
		queue, a.taskListener, err = a.rabbitQueue(processUC, baseLogger)
	default:
		a.memQueue = memqueue.NewScanTaskQueue(cfg.Scan.QueueCapacity)
		queue = a.memQueue
		var consumer *memqueue.ScanTaskConsumer
		consumer, err = memqueue.NewScanTaskConsumer(a.memQueue, processUC, memqueue.ConsumerConfig{
			Consumers:    cfg.Scan.Consumers,
			RequeueDelay: cfg.Scan.RequeueDelay,
			MaxAttempts:  cfg.Scan.MaxTaskAttempts,
		}, baseLogger)
		if err == nil {
			a.taskListener = consumer
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create scan task queue: %w", err)
	}

	scheduleUC := usecase.NewScheduleScanUseCase(queue, watermarks, progress, usecase.ScheduleConfig{
		Step:            cfg.Scan.Step,
		Overlap:         cfg.Scan.Overlap,
		InitialLookback: cfg.Scan.InitialLookback,
		PacingDelay:     cfg.Scan.PacingDelay,
	})
	a.logger.Info("All use cases initialized.", port.Fields{"queue_backend": cfg.Scan.QueueBackend})

	// --- 6. ВНЕШНИЕ ПОВЕРХНОСТИ ---
	streams := constants.Streams(cfg.Scan.ShiftLeftTypes)
	a.ticker, err = scheduler.NewStreamTicker(scheduleUC, enabledStreams(cfg.Scan, streams), cfg.Scan.Interval, baseLogger)
	if err != nil {
		return err
	}

	handlers := rest.NewScanHandler(scheduleUC, readStateUC, reingestUC, streams)
	a.apiServer = rest.NewServer(cfg.HTTP.Port, handlers, cfg.HTTP.CORSOrigins, baseLogger)
	a.logger.Info("REST API server configured.", nil)
	return nil
}

func (a *App) connectRabbitMQ(baseLogger port.LoggerPort) error {
	bridge := rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "rabbitmq_conn_manager"}))
	connManager, err := rabbitmq_common.NewConnectionManager(rabbitmq_common.Config{URL: a.config.RabbitMQ.URL}, bridge)
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}
	a.connManager = connManager

	publisher, err := rabbitmq_producer.NewPublisher(rabbitmq_producer.PublisherConfig{
		Config:                   rabbitmq_common.Config{URL: a.config.RabbitMQ.URL},
		ExchangeName:             constants.ExchangeName,
		ExchangeType:             "direct",
		DurableExchange:          true,
		DeclareExchangeIfMissing: true,
		Logger:                   rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "rabbitmq_publisher"})),
	}, connManager)
	if err != nil {
		return fmt.Errorf("failed to create rabbitmq publisher: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("RabbitMQ Connection Manager initialized.", nil)
	return nil
}

func (a *App) rabbitQueue(processUC *usecase.ProcessScanTaskUseCase, baseLogger port.LoggerPort) (port.ScanTaskQueuePort, port.EventListenerPort, error) {
	queue, err := rabbitmq_adapter.NewScanTaskQueueAdapter(a.publisher, constants.RoutingKeyScanTasks)
	if err != nil {
		return nil, nil, err
	}

	consumerCfg := rabbitmq_consumer.ConsumerConfig{
		Config:              rabbitmq_common.Config{URL: a.config.RabbitMQ.URL},
		QueueName:           constants.QueueScanTasks,
		RoutingKeyForBind:   constants.RoutingKeyScanTasks,
		ExchangeNameForBind: constants.ExchangeName,
		PrefetchCount:       a.config.Scan.Consumers,
		DurableQueue:        true,
		ConsumerTag:         "scan-tasks-processor-adapter",
		DeclareQueue:        true,

		EnableRetryMechanism: true,
		RetryExchange:        constants.QueueScanTasks + "_retry_ex",
		RetryQueue:           constants.QueueScanTasks + "_retry_wait",
		RetryTTL:             int(a.config.Scan.RequeueDelay.Milliseconds()),
		FinalDLXExchange:     constants.FinalDLXExchange,
		FinalDLQ:             constants.FinalDLQ,
		FinalDLQRoutingKey:   constants.FinalDLQRoutingKey,

		// повторы помимо первой попытки
		MaxRetries: a.config.Scan.MaxTaskAttempts - 1,
	}

	listener, err := rabbitmq_adapter.NewScanTasksConsumerAdapter(consumerCfg, processUC, baseLogger, a.connManager)
	if err != nil {
		return nil, nil, err
	}
	return queue, listener, nil
}

func enabledStreams(cfg configs.ScanConfig, streams map[string]domain.ScanStream) []domain.ScanStream {
	var out []domain.ScanStream
	if cfg.TradeMonitorEnabled {
		out = append(out, streams[constants.StreamTradeMonitor])
	}
	if cfg.ShiftLeftEnabled {
		out = append(out, streams[constants.StreamShiftLeft])
	}
	return out
}

func (a *App) Run() error {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	var wg sync.WaitGroup
	errorsCh := make(chan error, 3)

	defer func() {
		a.logger.Info("Shutdown sequence initiated...", nil)

		// сначала перестаем ставить задачи, затем ждем потребителей
		a.logger.Info("Waiting for background processes to finish...", nil)
		wg.Wait()
		a.logger.Info("All background processes finished.", nil)

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.apiServer.Stop(stopCtx); err != nil {
			a.logger.Error("Error during API server shutdown", err, nil)
		}

		a.closeResources()
	}()

	a.logger.Info("Application is starting...", nil)

	go func() {
		if err := a.apiServer.Start(); err != nil {
			errorsCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	startListener := func(name string, listener port.EventListenerPort) {
		defer wg.Done()
		listenerLogger := a.logger.WithFields(port.Fields{"listener": name})
		listenerLogger.Info("Starting listener...", nil)

		if err := listener.Start(appCtx); err != nil && !errors.Is(err, context.Canceled) {
			listenerLogger.Error("Listener stopped with an unexpected error", err, nil)
			errorsCh <- fmt.Errorf("%s error: %w", name, err)
		} else {
			listenerLogger.Info("Listener stopped gracefully.", nil)
		}
	}

	wg.Add(2)
	go startListener("Scan Tasks Listener", a.taskListener)
	go startListener("Stream Ticker", a.ticker)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	a.logger.Info("Application running. Waiting for signals or component error...", nil)
	var runErr error
	select {
	case receivedSignal := <-quit:
		a.logger.Warn("Received OS signal, shutting down...", port.Fields{"signal": receivedSignal.String()})
	case runErr = <-errorsCh:
		a.logger.Error("A critical component failed, shutting down", runErr, nil)
	}

	cancelApp()
	return runErr
}

// closeResources закрывает созданные ресурсы в обратном порядке. Nil-поля пропускаются,
// поэтому метод подходит и для отката частично собранного приложения.
func (a *App) closeResources() {
	if a.taskListener != nil {
		if err := a.taskListener.Close(); err != nil {
			a.logger.Error("Error closing scan task listener", err, nil)
		}
	}
	if a.ticker != nil {
		_ = a.ticker.Close()
	}
	if a.memQueue != nil {
		a.memQueue.Close()
	}
	if a.decodePool != nil {
		_ = a.decodePool.Close()
	}
	// уведомления доставляются до закрытия издателя
	if a.lotNotifier != nil {
		_ = a.lotNotifier.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Error closing rabbitmq publisher", err, nil)
		}
	}
	if a.connManager != nil {
		if err := a.connManager.Close(); err != nil {
			a.logger.Error("Error closing rabbitmq connection", err, nil)
		}
	}
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.logger.Info("PostgreSQL pool closed.", nil)
	}

	a.logger.Info("Application shut down gracefully.", nil)
	if a.fluentClient != nil {
		if err := a.fluentClient.Close(); err != nil {
			fmt.Printf("ERROR: Error closing fluent client: %v\n", err)
		}
	}
}

func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		log.Printf("Warning: Unknown log level '%s'. Defaulting to 'info'.", levelStr)
		return slog.LevelInfo
	}
}
