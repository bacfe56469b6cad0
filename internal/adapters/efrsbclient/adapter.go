package efrsbclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const maxResponseBody = 64 << 20

// Config - параметры доступа к API реестра
type Config struct {
	BaseURL  string
	Login    string
	Password string

	RequestsPerSecond float64
	Burst             int

	// MaxRetries - сколько повторов допускается после первой попытки
	MaxRetries         int
	BackoffFactor      time.Duration
	NetworkBackoffBase time.Duration
	RequestTimeout     time.Duration
	TokenTTL           time.Duration
	// Parallelism - сколько HTTP-запросов может одновременно находиться в полете
	Parallelism int
}

// PayloadValidator проверяет JSON-ответы реестра по контракту
type PayloadValidator interface {
	Validate(name, version string, body []byte) error
}

// EfrsbClientAdapter - клиент API ЕФРСБ. Все запросы, включая аутентификацию
// и повторы, проходят через общий лимитер частоты.
type EfrsbClientAdapter struct {
	cfg       Config
	collector *colly.Collector
	transport *http.Transport
	limiter   *rate.Limiter
	auth      *tokenState
	validator PayloadValidator

	// refreshMu сериализует повторную аутентификацию
	refreshMu sync.Mutex

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ port.RegistryClientPort = (*EfrsbClientAdapter)(nil)

// NewEfrsbClientAdapter - конструктор. Соединения открываются лениво, при первом запросе.
func NewEfrsbClientAdapter(cfg Config, validator PayloadValidator) (*EfrsbClientAdapter, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("efrsb client: base url is required")
	}
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("efrsb client: credentials are required")
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("efrsb client: requests per second must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 11 * time.Hour
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.Parallelism
	transport.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext

	// родительский коллектор: клоны наследуют транспорт и правило параллелизма
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxResponseBody),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.RequestTimeout)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: cfg.Parallelism}); err != nil {
		return nil, fmt.Errorf("efrsb client: failed to set limit rule: %w", err)
	}

	return &EfrsbClientAdapter{
		cfg:       cfg,
		collector: c,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		auth:      &tokenState{},
		validator: validator,
		sleep:     sleepCtx,
		now:       time.Now,
	}, nil
}

// Close освобождает пул соединений. Повторный вызов безопасен.
func (a *EfrsbClientAdapter) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.transport.CloseIdleConnections()
	})
	return nil
}

func (a *EfrsbClientAdapter) checkOpen() error {
	if a.closed.Load() {
		return domain.ErrClientClosed
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
