package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageSource - эндпоинт реестра, из которого читается поток сообщений
type MessageSource string

const (
	// SourceTradeMessages - /v1/trade-messages, сообщения о торгах
	SourceTradeMessages MessageSource = "trade-messages"
	// SourceMessages - /v1/messages, все сообщения с опциональным фильтром по типу
	SourceMessages MessageSource = "messages"
)

// Типы сообщений, для которых есть стратегии декодирования
const (
	MessageTypeBiddingInvitation       = "BiddingInvitation"
	MessageTypeBiddingInvitation2      = "BiddingInvitation2"
	MessageTypeAuction                 = "Auction"
	MessageTypeAuction2                = "Auction2"
	MessageTypePropertyInventoryResult = "PropertyInventoryResult"
	MessageTypePropertyEvaluation      = "PropertyEvaluationReport"
)

// MessageTypeMeetingResult - решение собрания кредиторов. Лотов не содержит и не декодируется.
const MessageTypeMeetingResult = "MeetingResult"

// TradeRef - ссылка на торги из конверта сообщения
type TradeRef struct {
	GUID   *uuid.UUID
	Number string
}

// RegistryMessage - одно сообщение реестра вместе с XML-контентом
type RegistryMessage struct {
	GUID           uuid.UUID
	Type           string
	PublishedAt    time.Time
	Content        string
	IsAnnulled     bool
	IsLocked       bool
	Trade          *TradeRef
	TradePlaceGUID *uuid.UUID
}

// MessagePage - одна страница ответа реестра
type MessagePage struct {
	Total    int
	Messages []RegistryMessage
}

// PageQuery - параметры запроса одной страницы
type PageQuery struct {
	Source MessageSource
	Start  time.Time
	End    time.Time
	Types  []string
	Limit  int
	Offset int
}
