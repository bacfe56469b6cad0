package constants

const ExchangeName = "fedresurs_exchange"

// Имена очередей
const (
	QueueScanTasks = "efrsb_scan_tasks"
)

// Ключи маршрутизации
const (
	RoutingKeyScanTasks  = "efrsb.scan.tasks"
	RoutingKeyLotCreated = "efrsb.lots.created"
)

const (
	FinalDLXExchange   = "efrsb_scan_tasks_final_dlx"
	FinalDLQ           = "efrsb_scan_tasks_final_dlq"
	FinalDLQRoutingKey = "scan_tasks.dlq.key"
)

// Версионированные контракты событий
const (
	EventTypeLotCreated    = "LotCreatedEvent"
	EventVersionLotCreated = "1.0.0"

	RegistryPageSchema        = "MessagesPageResponse"
	RegistryPageSchemaVersion = "1.0.0"
)
