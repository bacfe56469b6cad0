package configs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fedresurs-radar/internal/constants"

	"github.com/joho/godotenv"
)

// RabbitMQConfig хранит конфигурацию для RabbitMQ
type RabbitMQConfig struct {
	URL string
	// PublishLotEvents - публиковать события о новых лотах в брокер
	PublishLotEvents bool
}

// DBconfig хранит конфигурацию для БД
type DBconfig struct {
	URL      string
	MaxConns int
}

type StdoutLogConfig struct {
	Level  string
	IsJSON bool
}

type FluentBitConfig struct {
	Host    string
	Port    int
	Enabled bool
	Level   string
}

type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// RegistryConfig - доступ к API реестра
type RegistryConfig struct {
	Env                string // DEMO или PROD
	BaseURL            string
	Login              string
	Password           string
	RequestsPerSecond  float64
	Burst              int
	MaxRetries         int
	BackoffFactor      time.Duration
	NetworkBackoffBase time.Duration
	RequestTimeout     time.Duration
	TokenTTL           time.Duration
	PageLimit          int
	Parallelism        int
}

// ScanConfig - планировщик, очередь и пул декодирования
type ScanConfig struct {
	Interval        time.Duration
	InitialLookback time.Duration
	Step            time.Duration
	Overlap         time.Duration
	PacingDelay     time.Duration

	QueueBackend    string // memory или rabbitmq
	QueueCapacity   int
	Consumers       int
	DecodeWorkers   int
	RequeueDelay    time.Duration
	MaxTaskAttempts int

	TradeMonitorEnabled bool
	ShiftLeftEnabled    bool
	ShiftLeftTypes      []string
}

// FilterConfig - профиль семантического фильтра
type FilterConfig struct {
	TargetCodes     []string
	IncludeKeywords []string
	ExcludeKeywords []string
}

// AppConfig хранит всю конфигурацию приложения
type AppConfig struct {
	AppName      string
	Database     DBconfig
	RabbitMQ     RabbitMQConfig
	FluentBit    FluentBitConfig
	StdoutLogger StdoutLogConfig
	HTTP         HTTPConfig
	Registry     RegistryConfig
	Scan         ScanConfig
	Filter       FilterConfig
}

// LoadConfig загружает конфигурацию из .env (если он есть) и переменных окружения
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		// в контейнере переменные приходят из окружения, .env необязателен
		log.Printf("Info: .env file not loaded (path: %v): %v", envPath, err)
	}

	cfg := &AppConfig{}
	cfg.AppName = getEnvAsString("APP_NAME", "fedresurs-radar")

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxConns = getEnvAsInt("DATABASE_MAX_CONNS", 10)

	cfg.Scan.QueueBackend = strings.ToLower(getEnvAsString("SCAN_QUEUE_BACKEND", "memory"))
	cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
	cfg.RabbitMQ.PublishLotEvents = getEnvAsBool("RABBITMQ_PUBLISH_LOT_EVENTS", cfg.RabbitMQ.URL != "")

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "debug")
	cfg.StdoutLogger.IsJSON = getEnvAsBool("STDOUT_LOG_JSON", false)

	cfg.HTTP.Port = getEnvAsInt("HTTP_PORT", 8080)
	cfg.HTTP.CORSOrigins = getEnvAsStringSlice("HTTP_CORS_ORIGINS", []string{"*"})

	cfg.Registry.Env = strings.ToUpper(getEnvAsString("EFRSB_ENV", "DEMO"))
	cfg.Registry.BaseURL = getEnvAsString("EFRSB_BASE_URL", "")
	cfg.Registry.Login = os.Getenv("EFRSB_LOGIN")
	cfg.Registry.Password = os.Getenv("EFRSB_PASSWORD")
	cfg.Registry.RequestsPerSecond = getEnvAsFloat("EFRSB_RPS", 6)
	cfg.Registry.Burst = getEnvAsInt("EFRSB_BURST", 1)
	cfg.Registry.MaxRetries = getEnvAsInt("EFRSB_MAX_RETRIES", 3)
	cfg.Registry.BackoffFactor = getEnvAsDuration("EFRSB_BACKOFF_FACTOR", 2*time.Second)
	cfg.Registry.NetworkBackoffBase = getEnvAsDuration("EFRSB_NETWORK_BACKOFF_BASE", time.Second)
	cfg.Registry.RequestTimeout = getEnvAsDuration("EFRSB_REQUEST_TIMEOUT", 30*time.Second)
	cfg.Registry.TokenTTL = getEnvAsDuration("EFRSB_TOKEN_TTL", 11*time.Hour)
	cfg.Registry.PageLimit = getEnvAsInt("EFRSB_PAGE_LIMIT", constants.MaxPageLimit)
	cfg.Registry.Parallelism = getEnvAsInt("EFRSB_PARALLELISM", 4)

	cfg.Scan.Interval = getEnvAsDuration("SCAN_INTERVAL", time.Hour)
	cfg.Scan.InitialLookback = getEnvAsDuration("SCAN_INITIAL_LOOKBACK", 30*24*time.Hour)
	cfg.Scan.Step = getEnvAsDuration("SCAN_STEP", 7*24*time.Hour)
	cfg.Scan.Overlap = getEnvAsDuration("SCAN_OVERLAP", 2*24*time.Hour)
	cfg.Scan.PacingDelay = getEnvAsDuration("SCAN_PACING_DELAY", 500*time.Millisecond)
	cfg.Scan.QueueCapacity = getEnvAsInt("SCAN_QUEUE_CAPACITY", 64)
	cfg.Scan.Consumers = getEnvAsInt("SCAN_CONSUMERS", 2)
	cfg.Scan.DecodeWorkers = getEnvAsInt("SCAN_DECODE_WORKERS", 4)
	cfg.Scan.RequeueDelay = getEnvAsDuration("SCAN_REQUEUE_DELAY", 30*time.Second)
	cfg.Scan.MaxTaskAttempts = getEnvAsInt("SCAN_MAX_TASK_ATTEMPTS", 5)
	cfg.Scan.TradeMonitorEnabled = getEnvAsBool("SCAN_TRADE_MONITOR_ENABLED", true)
	cfg.Scan.ShiftLeftEnabled = getEnvAsBool("SCAN_SHIFT_LEFT_ENABLED", false)
	cfg.Scan.ShiftLeftTypes = getEnvAsStringSlice("SCAN_SHIFT_LEFT_TYPES", constants.DefaultShiftLeftTypes)

	cfg.Filter.TargetCodes = getEnvAsStringSlice("FILTER_TARGET_CODES", constants.DefaultTargetCodes)
	cfg.Filter.IncludeKeywords = getEnvAsStringSlice("FILTER_INCLUDE_KEYWORDS", constants.DefaultIncludeKeywords)
	cfg.Filter.ExcludeKeywords = getEnvAsStringSlice("FILTER_EXCLUDE_KEYWORDS", constants.DefaultExcludeKeywords)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize проверяет обязательные поля и приводит значения к допустимым диапазонам
func (cfg *AppConfig) normalize() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.Registry.Login == "" || cfg.Registry.Password == "" {
		return fmt.Errorf("EFRSB_LOGIN and EFRSB_PASSWORD environment variables are required")
	}

	switch cfg.Scan.QueueBackend {
	case constants.QueueBackendMemory:
	case constants.QueueBackendRabbitMQ:
		if cfg.RabbitMQ.URL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when SCAN_QUEUE_BACKEND=rabbitmq")
		}
	default:
		return fmt.Errorf("unknown SCAN_QUEUE_BACKEND %q", cfg.Scan.QueueBackend)
	}
	if cfg.RabbitMQ.PublishLotEvents && cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required when RABBITMQ_PUBLISH_LOT_EVENTS=true")
	}

	if cfg.Registry.BaseURL == "" {
		switch cfg.Registry.Env {
		case "PROD":
			cfg.Registry.BaseURL = constants.ProdBaseURL
		case "DEMO":
			cfg.Registry.BaseURL = constants.DemoBaseURL
		default:
			return fmt.Errorf("unknown EFRSB_ENV %q, expected DEMO or PROD", cfg.Registry.Env)
		}
	}
	cfg.Registry.BaseURL = strings.TrimRight(cfg.Registry.BaseURL, "/")

	cfg.Registry.RequestsPerSecond = clampFloat(cfg.Registry.RequestsPerSecond, 1, constants.MaxRequestsPerSecond)
	cfg.Registry.Burst = clampInt(cfg.Registry.Burst, 1, 8)
	cfg.Registry.MaxRetries = clampInt(cfg.Registry.MaxRetries, 0, 10)
	cfg.Registry.PageLimit = clampInt(cfg.Registry.PageLimit, 1, constants.MaxPageLimit)
	cfg.Registry.Parallelism = clampInt(cfg.Registry.Parallelism, 1, 16)

	if cfg.Scan.Step <= 0 || cfg.Scan.Step > constants.MaxRegistryWindow {
		cfg.Scan.Step = constants.MaxRegistryWindow
	}
	if cfg.Scan.Overlap < 0 {
		cfg.Scan.Overlap = 0
	}
	cfg.Scan.QueueCapacity = clampInt(cfg.Scan.QueueCapacity, 1, 10000)
	cfg.Scan.Consumers = clampInt(cfg.Scan.Consumers, 1, 64)
	cfg.Scan.DecodeWorkers = clampInt(cfg.Scan.DecodeWorkers, 1, 64)
	cfg.Scan.MaxTaskAttempts = clampInt(cfg.Scan.MaxTaskAttempts, 1, 100)

	return nil
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// getEnvAsString читает переменную окружения как строку или возвращает значение по умолчанию
func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt читает переменную окружения как int.
// Логирует предупреждение, если значение не разбирается.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as float: %v. Using default value: %v\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsBool читает переменную окружения как bool или возвращает значение по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration принимает формат time.ParseDuration, а также целое число дней с суффиксом "d"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valStr = strings.TrimSpace(valStr)

	if days, ok := strings.CutSuffix(valStr, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}

	d, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return d
}

// getEnvAsStringSlice читает список через запятую, пустые элементы отбрасываются
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
