package efrsbclient

import (
	"fmt"
	"strings"
	"time"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

type authRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ключ сопоставляется без учета регистра, поэтому подходит и "jwt", и "JWT"
type authResponse struct {
	JWT string `json:"jwt"`
}

type messagesPageDTO struct {
	Total    int          `json:"total"`
	PageData []messageDTO `json:"pageData"`
}

type tradeRefDTO struct {
	GUID   string `json:"guid"`
	Number string `json:"number"`
}

type messageDTO struct {
	GUID           string       `json:"guid"`
	Type           string       `json:"type"`
	DatePublish    string       `json:"datePublish"`
	Content        string       `json:"content"`
	IsAnnulled     bool         `json:"isAnnulled"`
	IsLocked       bool         `json:"isLocked"`
	Trade          *tradeRefDTO `json:"trade"`
	TradePlaceGUID string       `json:"tradePlaceGuid"`
}

var publishLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parsePublishDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishLayouts {
		if t, err := time.ParseInLocation(layout, s, constants.RegistryLocation); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatQueryDate(t time.Time) string {
	return t.In(constants.RegistryLocation).Format(constants.RegistryDateLayout)
}

func (m messageDTO) toDomain() (domain.RegistryMessage, error) {
	guid, err := uuid.Parse(m.GUID)
	if err != nil {
		return domain.RegistryMessage{}, fmt.Errorf("message guid %q: %w", m.GUID, err)
	}

	msg := domain.RegistryMessage{
		GUID:       guid,
		Type:       m.Type,
		Content:    m.Content,
		IsAnnulled: m.IsAnnulled,
		IsLocked:   m.IsLocked,
	}
	if published, ok := parsePublishDate(m.DatePublish); ok {
		msg.PublishedAt = published
	}

	if m.Trade != nil {
		ref := &domain.TradeRef{Number: m.Trade.Number}
		if g, err := uuid.Parse(m.Trade.GUID); err == nil {
			ref.GUID = &g
		}
		msg.Trade = ref
	}
	if g, err := uuid.Parse(m.TradePlaceGUID); err == nil {
		msg.TradePlaceGUID = &g
	}
	return msg, nil
}
