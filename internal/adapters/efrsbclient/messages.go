package efrsbclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/google/uuid"
)

// FetchMessagesPage возвращает одну страницу сообщений за [Start, End]
func (a *EfrsbClientAdapter) FetchMessagesPage(ctx context.Context, q domain.PageQuery) (*domain.MessagePage, error) {
	if !q.Start.Before(q.End) {
		return nil, fmt.Errorf("efrsb client: empty date range %s..%s", q.Start, q.End)
	}
	if q.End.Sub(q.Start) > domain.MaxRegistryWindow {
		return nil, fmt.Errorf("efrsb client: %s..%s: %w", q.Start, q.End, domain.ErrWindowTooWide)
	}

	endpoint := constants.TradeMessagesPath
	if q.Source == domain.SourceMessages {
		endpoint = constants.MessagesPath
	}

	limit := q.Limit
	if limit <= 0 || limit > constants.MaxPageLimit {
		limit = constants.MaxPageLimit
	}

	query := url.Values{}
	query.Set("datePublishBegin", "gte:"+formatQueryDate(q.Start))
	query.Set("datePublishEnd", "lte:"+formatQueryDate(q.End))
	query.Set("includeContent", "true")
	query.Set("isAnnulled", "false")
	query.Set("isLocked", "false")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(max(q.Offset, 0)))
	if q.Source == domain.SourceMessages && len(q.Types) > 0 {
		query.Set("type", strings.Join(q.Types, ","))
	}

	body, err := a.execute(ctx, apiRequest{
		method:        http.MethodGet,
		endpoint:      endpoint,
		query:         query,
		authenticated: true,
	})
	if err != nil {
		return nil, err
	}

	return a.decodePage(ctx, endpoint, body)
}

func (a *EfrsbClientAdapter) decodePage(ctx context.Context, endpoint string, body []byte) (*domain.MessagePage, error) {
	if a.validator != nil {
		if err := a.validator.Validate(constants.RegistryPageSchema, constants.RegistryPageSchemaVersion, body); err != nil {
			return nil, &domain.ApiError{Kind: domain.FailurePayload, StatusCode: http.StatusOK, Endpoint: endpoint, Err: err}
		}
	}

	var dto messagesPageDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &domain.ApiError{Kind: domain.FailurePayload, StatusCode: http.StatusOK, Endpoint: endpoint, Err: err}
	}

	return &domain.MessagePage{
		Total:    dto.Total,
		Messages: a.mapMessages(ctx, dto.PageData),
	}, nil
}

// mapMessages пропускает записи с нечитаемым GUID, не роняя всю страницу
func (a *EfrsbClientAdapter) mapMessages(ctx context.Context, items []messageDTO) []domain.RegistryMessage {
	logger := contextkeys.LoggerFromContext(ctx)
	out := make([]domain.RegistryMessage, 0, len(items))
	for _, item := range items {
		msg, err := item.toDomain()
		if err != nil {
			logger.Warn("Skipping registry message with malformed envelope", port.Fields{"error": err.Error()})
			continue
		}
		out = append(out, msg)
	}
	return out
}

// GetMessage возвращает одно сообщение по GUID
func (a *EfrsbClientAdapter) GetMessage(ctx context.Context, guid uuid.UUID) (*domain.RegistryMessage, error) {
	endpoint := constants.MessagesPath + "/" + guid.String()
	body, err := a.execute(ctx, apiRequest{method: http.MethodGet, endpoint: endpoint, authenticated: true})
	if err != nil {
		return nil, err
	}

	var dto messageDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &domain.ApiError{Kind: domain.FailurePayload, StatusCode: http.StatusOK, Endpoint: endpoint, Err: err}
	}
	msg, err := dto.toDomain()
	if err != nil {
		return nil, &domain.ApiError{Kind: domain.FailurePayload, StatusCode: http.StatusOK, Endpoint: endpoint, Err: err}
	}
	return &msg, nil
}

// GetLinkedMessages возвращает сообщения, связанные с guid.
// Реестр отдает либо массив, либо страницу вида {total, pageData}.
func (a *EfrsbClientAdapter) GetLinkedMessages(ctx context.Context, guid uuid.UUID) ([]domain.RegistryMessage, error) {
	endpoint := constants.MessagesPath + "/" + guid.String() + "/linked"
	body, err := a.execute(ctx, apiRequest{method: http.MethodGet, endpoint: endpoint, authenticated: true})
	if err != nil {
		return nil, err
	}

	var items []messageDTO
	if err := json.Unmarshal(body, &items); err == nil {
		return a.mapMessages(ctx, items), nil
	}

	var page messagesPageDTO
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &domain.ApiError{
			Kind:       domain.FailurePayload,
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Err:        errors.New("linked messages response is neither an array nor a page"),
		}
	}
	return a.mapMessages(ctx, page.PageData), nil
}
