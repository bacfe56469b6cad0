package xmldecoder

import (
	"fmt"
	"strings"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/antchfx/xmlquery"
	"github.com/google/uuid"
)

// XMLDecoderAdapter разбирает XML-контент сообщений ЕФРСБ.
// Не имеет изменяемого состояния и безопасен для вызова из нескольких горутин.
type XMLDecoderAdapter struct {
	strategies map[string]strategy
}

var _ port.DocumentDecoderPort = (*XMLDecoderAdapter)(nil)

func NewXMLDecoderAdapter() *XMLDecoderAdapter {
	etp, auction, inventory := etpStrategy{}, auctionStrategy{}, inventoryStrategy{}
	evaluation := evaluationStrategy{fallback: inventory}
	return &XMLDecoderAdapter{
		strategies: map[string]strategy{
			domain.MessageTypeBiddingInvitation:       etp,
			domain.MessageTypeBiddingInvitation2:      etp,
			domain.MessageTypeAuction:                 auction,
			domain.MessageTypeAuction2:                auction,
			domain.MessageTypePropertyInventoryResult: inventory,
			domain.MessageTypePropertyEvaluation:      evaluation,
		},
	}
}

// Supports сообщает, есть ли стратегия для типа сообщения
func (d *XMLDecoderAdapter) Supports(messageType string) bool {
	_, ok := d.strategies[messageType]
	return ok
}

// Decode извлекает торги и лоты. Поле, которое не удалось разобрать, остается пустым
// и не мешает остальным полям и лотам. Документ без лотов не считается ошибкой.
func (d *XMLDecoderAdapter) Decode(msg domain.RegistryMessage) (domain.DecodedDocument, error) {
	s, ok := d.strategies[msg.Type]
	if !ok {
		return domain.DecodedDocument{}, fmt.Errorf("%q: %w", msg.Type, domain.ErrUnsupportedMessageType)
	}

	doc := domain.DecodedDocument{
		MessageGUID: msg.GUID,
		MessageType: msg.Type,
	}

	content := cleanContent(msg.Content)
	if content == "" {
		doc.Trade = envelopeTrade(msg, nil)
		return doc, nil
	}

	root, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return domain.DecodedDocument{}, &domain.DecodeError{MessageGUID: msg.GUID, MessageType: msg.Type, Err: err}
	}
	normalize(root)

	doc.Trade = envelopeTrade(msg, root)

	blocks := s.lots(root)
	lots := make([]domain.Lot, 0, len(blocks))
	for _, b := range blocks {
		lots = append(lots, decodeLot(b, doc.Trade.GUID, msg.GUID))
	}
	doc.Lots = lots
	return doc, nil
}

// envelopeTrade собирает заголовок торгов из конверта и документа.
// GUID торгов: конверт, затем элемент TradeGuid, затем GUID самого сообщения.
func envelopeTrade(msg domain.RegistryMessage, root *xmlquery.Node) domain.Trade {
	trade := domain.Trade{
		GUID:       msg.GUID,
		IsAnnulled: msg.IsAnnulled,
	}
	if msg.Trade != nil {
		trade.Number = msg.Trade.Number
	}

	switch {
	case msg.Trade != nil && msg.Trade.GUID != nil:
		trade.GUID = *msg.Trade.GUID
	default:
		if g := parseGUID(text(root, "//tradeguid")); g != nil {
			trade.GUID = *g
		}
	}

	if root != nil {
		if number := text(root, "//tradenumber", "//notificationnumber", "//tradeid"); number != "" {
			trade.Number = number
		}
		trade.PlatformName = text(root, "//tradeplace/name", "//tradesite", "//etpname")
		trade.PublishedAt = parseDate(text(root, "//publishdate", "//datepublish", "//createdate"))
	}
	if trade.PublishedAt == nil && !msg.PublishedAt.IsZero() {
		published := msg.PublishedAt
		trade.PublishedAt = &published
	}
	return trade
}

func decodeLot(b lotNode, tradeGUID, messageGUID uuid.UUID) domain.Lot {
	n := b.node

	number := b.position
	if len(b.numberExprs) > 0 {
		if parsed := parseInt(text(n, b.numberExprs...)); parsed > 0 {
			number = parsed
		}
	}

	description := stripHTML(text(n, b.descExprs...))
	address := collapseSpaces(text(n, "location", "address", ".//location", ".//address"))

	return domain.NewLot(domain.LotParams{
		GUID:             parseGUID(text(n, "guid", "lotguid")),
		TradeGUID:        tradeGUID,
		Number:           number,
		Description:      description,
		Address:          address,
		StartPrice:       parseDecimal(text(n, b.priceExprs...)),
		StepPrice:        parseDecimal(text(n, "stepprice", "step", ".//stepprice")),
		Advance:          parseDecimal(text(n, "advance", ".//advance")),
		Status:           parseStatus(text(n, "status", "lotstatus")),
		ClassifierCode:   text(n, ".//classifier/code", ".//auctionlotclassifier/code", "classifiercode"),
		CadastralNumbers: extractCadastral(description, address),
		IsRestricted:     isRestricted(description),
		PriceSchedule:    priceSchedule(n),
		MessageGUID:      messageGUID,
	})
}
