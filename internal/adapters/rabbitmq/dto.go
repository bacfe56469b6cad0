package rabbitmq

import (
	"time"

	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

// ScanTaskDTO - тело сообщения очереди задач сканирования
type ScanTaskDTO struct {
	TaskID    uuid.UUID `json:"task_id"`
	PassID    uuid.UUID `json:"pass_id"`
	StreamKey string    `json:"stream_key"`
	Source    string    `json:"source"`
	Types     []string  `json:"types,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func scanTaskToDTO(t domain.ScanTask) ScanTaskDTO {
	return ScanTaskDTO{
		TaskID:    t.ID,
		PassID:    t.PassID,
		StreamKey: t.StreamKey,
		Source:    string(t.Source),
		Types:     t.Types,
		Start:     t.Start,
		End:       t.End,
	}
}

// попытка берется не из тела, а из счетчика x-death брокера
func (d ScanTaskDTO) toDomain(attempt int) domain.ScanTask {
	return domain.ScanTask{
		ID:        d.TaskID,
		PassID:    d.PassID,
		StreamKey: d.StreamKey,
		Source:    domain.MessageSource(d.Source),
		Types:     append([]string(nil), d.Types...),
		Start:     d.Start,
		End:       d.End,
		Attempt:   attempt,
	}
}

// LotCreatedEventDTO - контракт LotCreatedEvent/1.0.0
type LotCreatedEventDTO struct {
	EventID     uuid.UUID `json:"event_id"`
	DetectedAt  time.Time `json:"detected_at"`
	LotID       int64     `json:"lot_id"`
	MessageGUID uuid.UUID `json:"message_guid"`
	HighValue   bool      `json:"high_value"`
	Trade       TradeDTO  `json:"trade"`
	Lot         LotDTO    `json:"lot"`
}

type TradeDTO struct {
	GUID         uuid.UUID  `json:"guid"`
	Number       string     `json:"number"`
	PlatformName string     `json:"platform_name"`
	PublishedAt  *time.Time `json:"published_at"`
	IsAnnulled   bool       `json:"is_annulled"`
}

type LotDTO struct {
	GUID             *uuid.UUID `json:"guid"`
	Number           int        `json:"number"`
	Description      string     `json:"description"`
	Address          string     `json:"address"`
	StartPrice       *string    `json:"start_price"`
	Status           string     `json:"status"`
	ClassifierCode   string     `json:"classifier_code"`
	CadastralNumbers []string   `json:"cadastral_numbers"`
	IsRestricted     bool       `json:"is_restricted"`
	Tags             []string   `json:"tags"`
	RedFlags         []string   `json:"red_flags"`
	Score            int        `json:"score"`
	Zone             string     `json:"zone"`
}

func lotEventToDTO(e domain.NewLotEvent) LotCreatedEventDTO {
	lot := e.Lot
	var price *string
	if lot.StartPrice != nil {
		s := lot.StartPrice.String()
		price = &s
	}

	return LotCreatedEventDTO{
		EventID:     uuid.New(),
		DetectedAt:  e.DetectedAt.UTC(),
		LotID:       e.LotID,
		MessageGUID: e.MessageGUID,
		HighValue:   e.HighValue,
		Trade: TradeDTO{
			GUID:         e.Trade.GUID,
			Number:       e.Trade.Number,
			PlatformName: e.Trade.PlatformName,
			PublishedAt:  e.Trade.PublishedAt,
			IsAnnulled:   e.Trade.IsAnnulled,
		},
		Lot: LotDTO{
			GUID:             lot.GUID,
			Number:           lot.Number,
			Description:      lot.Description,
			Address:          lot.Address,
			StartPrice:       price,
			Status:           string(lot.Status),
			ClassifierCode:   lot.ClassifierCode,
			CadastralNumbers: orEmpty(lot.CadastralNumbers),
			IsRestricted:     lot.IsRestricted,
			Tags:             orEmpty(lot.Classification.Tags),
			RedFlags:         orEmpty(lot.Classification.RedFlags),
			Score:            lot.Classification.Score,
			Zone:             string(lot.Classification.Zone),
		},
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
