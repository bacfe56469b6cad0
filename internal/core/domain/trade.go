package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotStatus - перечисление статусов лота
type LotStatus string

const (
	LotStatusAnnounced LotStatus = "Announced"
	LotStatusActive    LotStatus = "Active"
	LotStatusFailed    LotStatus = "Failed"
	LotStatusSold      LotStatus = "Sold"
	LotStatusCancelled LotStatus = "Cancelled"
)

// LocationZone - грубая география лота по кадастровому кварталу
type LocationZone string

const (
	ZoneGardenRing LocationZone = "GARDEN_RING"
	ZoneTTK        LocationZone = "TTK"
	ZoneOutside    LocationZone = "OUTSIDE"
)

// Trade - торги, опубликованные в реестре. Идентичность - GUID.
type Trade struct {
	GUID         uuid.UUID
	Number       string
	PlatformName string
	PublishedAt  *time.Time
	IsAnnulled   bool
}

// PriceSchedule - один период графика снижения цены (публичное предложение)
type PriceSchedule struct {
	Period    int
	Price     decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
}

// Classification - результат семантической классификации лота
type Classification struct {
	Tags     []string
	RedFlags []string
	Score    int
	Zone     LocationZone
}

// Lot - лот внутри торгов. Ключ - (TradeGUID, Number).
// Значение собирается один раз декодером и дальше только читается.
type Lot struct {
	GUID           *uuid.UUID
	TradeGUID      uuid.UUID
	Number         int
	Description    string
	Address        string
	StartPrice     *decimal.Decimal
	StepPrice      *decimal.Decimal
	Advance        *decimal.Decimal
	Status         LotStatus
	ClassifierCode string
	// упорядоченное множество без повторов
	CadastralNumbers []string
	IsRestricted     bool
	PriceSchedule    []PriceSchedule
	MessageGUID      uuid.UUID

	Classification Classification
}

// LotParams - входные данные конструктора NewLot
type LotParams struct {
	GUID             *uuid.UUID
	TradeGUID        uuid.UUID
	Number           int
	Description      string
	Address          string
	StartPrice       *decimal.Decimal
	StepPrice        *decimal.Decimal
	Advance          *decimal.Decimal
	Status           LotStatus
	ClassifierCode   string
	CadastralNumbers []string
	IsRestricted     bool
	PriceSchedule    []PriceSchedule
	MessageGUID      uuid.UUID
}

// NewLot создает лот, копируя срезы, чтобы значение не разделяло память с вызывающим кодом
func NewLot(p LotParams) Lot {
	status := p.Status
	if status == "" {
		status = LotStatusAnnounced
	}
	number := p.Number
	if number <= 0 {
		number = 1
	}
	return Lot{
		GUID:             p.GUID,
		TradeGUID:        p.TradeGUID,
		Number:           number,
		Description:      p.Description,
		Address:          p.Address,
		StartPrice:       p.StartPrice,
		StepPrice:        p.StepPrice,
		Advance:          p.Advance,
		Status:           status,
		ClassifierCode:   p.ClassifierCode,
		CadastralNumbers: append([]string(nil), p.CadastralNumbers...),
		IsRestricted:     p.IsRestricted,
		PriceSchedule:    append([]PriceSchedule(nil), p.PriceSchedule...),
		MessageGUID:      p.MessageGUID,
	}
}

// WithClassification возвращает копию лота с результатами классификации
func (l Lot) WithClassification(c Classification) Lot {
	c.Tags = append([]string(nil), c.Tags...)
	c.RedFlags = append([]string(nil), c.RedFlags...)
	l.Classification = c
	return l
}

// DecodedDocument - результат декодирования одного сообщения реестра
type DecodedDocument struct {
	Trade       Trade
	Lots        []Lot
	MessageGUID uuid.UUID
	MessageType string
}

// WithLots возвращает копию документа с другим набором лотов (после фильтрации)
func (d DecodedDocument) WithLots(lots []Lot) DecodedDocument {
	d.Lots = append([]Lot(nil), lots...)
	return d
}

// NewLotEvent - событие о впервые увиденном лоте, уходит в хук уведомлений
type NewLotEvent struct {
	LotID       int64
	Lot         Lot
	Trade       Trade
	MessageGUID uuid.UUID
	HighValue   bool
	DetectedAt  time.Time
}

// SavedLot - результат upsert одного лота
type SavedLot struct {
	ID      int64
	Lot     Lot
	Created bool
}

// SaveResult - результат сохранения одного документа
type SaveResult struct {
	TradeCreated bool
	Lots         []SavedLot
}

// CreatedCount - количество впервые созданных лотов
func (r SaveResult) CreatedCount() int {
	n := 0
	for _, l := range r.Lots {
		if l.Created {
			n++
		}
	}
	return n
}

// IngestOutcome - итог обработки одного декодированного документа
type IngestOutcome struct {
	Persisted bool
	InScope   int
	Filtered  int
	NewLots   int
}
