package constants

import (
	"time"

	"fedresurs-radar/internal/core/domain"
)

// Адреса API реестра
const (
	DemoBaseURL = "https://bank-publications-demo.fedresurs.ru"
	ProdBaseURL = "https://bank-publications-prod.fedresurs.ru"
)

// Эндпоинты
const (
	AuthPath          = "/v1/auth"
	TradeMessagesPath = "/v1/trade-messages"
	MessagesPath      = "/v1/messages"
)

const (
	MaxPageLimit         = 500
	MaxRequestsPerSecond = 8
	MaxRegistryWindow    = domain.MaxRegistryWindow

	// формат границ диапазона в query-параметрах, время московское без зоны
	RegistryDateLayout = "2006-01-02T15:04:05"
)

// RegistryLocation - реестр публикует и принимает время по Москве без указания зоны
var RegistryLocation = time.FixedZone("MSK", 3*60*60)

// Ключи потоков сканирования (строки system_state)
const (
	StreamTradeMonitor = "trade_monitor"
	StreamShiftLeft    = "shift_left"
)

const (
	QueueBackendMemory   = "memory"
	QueueBackendRabbitMQ = "rabbitmq"
)

var DefaultShiftLeftTypes = []string{
	domain.MessageTypePropertyInventoryResult,
	domain.MessageTypePropertyEvaluation,
}

// Коды классификатора ЕФРСБ: земли под жилую и многоэтажную застройку, МКД, объекты незавершенного строительства
var DefaultTargetCodes = []string{
	"0108001", "0402006", "0402003", "0402004",
	"0101014", "0101016", "0103", "0101009",
}

var DefaultIncludeKeywords = []string{
	"многоквартирн", "жилая застройка", "ж-1", "ж-2", "высотная",
	"комплексное освоение", "рнс", "гпзу", "мкд", "ж-зона",
}

var DefaultExcludeKeywords = []string{
	"снт", "лпх", "сельскохозяйств", "садоводство", "гараж",
	"днп", "дача", "огород", "садовый",
}

// Streams возвращает описания потоков сканирования
func Streams(shiftLeftTypes []string) map[string]domain.ScanStream {
	return map[string]domain.ScanStream{
		StreamTradeMonitor: {
			Key:    StreamTradeMonitor,
			Source: domain.SourceTradeMessages,
		},
		StreamShiftLeft: {
			Key:    StreamShiftLeft,
			Source: domain.SourceMessages,
			Types:  append([]string(nil), shiftLeftTypes...),
		},
	}
}
