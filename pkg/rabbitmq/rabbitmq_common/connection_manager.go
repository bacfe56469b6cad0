package rabbitmq_common

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultReconnectInterval = 10 * time.Second

// ConnectionManager владеет одним соединением RabbitMQ, которое делят
// все издатели и потребители процесса. Создается явно в корне композиции.
type ConnectionManager struct {
	cfg        Config
	dial       func(url string) (*amqp.Connection, error)
	connection *amqp.Connection
	mutex      sync.RWMutex
	logger     Logger

	reconnectEvery time.Duration
	done           chan struct{}
	closeOnce      sync.Once
}

// NewConnectionManager подключается к брокеру и запускает фоновое переподключение
func NewConnectionManager(cfg Config, logger Logger) (*ConnectionManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &ConnectionManager{
		cfg:            cfg,
		dial:           amqp.Dial,
		logger:         OrNoop(logger),
		reconnectEvery: defaultReconnectInterval,
		done:           make(chan struct{}),
	}

	if _, err := m.getConnection(); err != nil {
		m.logger.Error(err, "Initial connection failed")
		return nil, fmt.Errorf("initial connection failed: %w", err)
	}

	go m.watch()
	return m, nil
}

func (m *ConnectionManager) getConnection() (*amqp.Connection, error) {
	m.mutex.RLock()
	if m.connection != nil && !m.connection.IsClosed() {
		conn := m.connection
		m.mutex.RUnlock()
		return conn, nil
	}
	m.mutex.RUnlock()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// кто-то мог переподключиться, пока мы ждали блокировку
	if m.connection != nil && !m.connection.IsClosed() {
		return m.connection, nil
	}

	select {
	case <-m.done:
		return nil, fmt.Errorf("connection manager is closed")
	default:
	}

	m.logger.Debug("ConnectionManager: connecting")
	conn, err := m.dial(m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	m.connection = conn
	m.logger.Info("ConnectionManager: connected")
	return conn, nil
}

// GetChannel открывает новый канал на общем соединении
func (m *ConnectionManager) GetChannel() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := m.getConnection()
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return conn, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

func (m *ConnectionManager) watch() {
	ticker := time.NewTicker(m.reconnectEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		m.mutex.RLock()
		healthy := m.connection != nil && !m.connection.IsClosed()
		m.mutex.RUnlock()
		if healthy {
			continue
		}

		m.logger.Warn("ConnectionManager: connection lost, reconnecting")
		if _, err := m.getConnection(); err != nil {
			m.logger.Error(err, "ConnectionManager: reconnect failed")
		}
	}
}

// Close останавливает переподключение и закрывает соединение. Повторный вызов безопасен.
func (m *ConnectionManager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)

		m.mutex.Lock()
		defer m.mutex.Unlock()
		if m.connection != nil && !m.connection.IsClosed() {
			if err = m.connection.Close(); err != nil {
				m.logger.Error(err, "ConnectionManager: failed to close connection")
				return
			}
		}
		m.logger.Debug("ConnectionManager: closed")
	})
	return err
}
