package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/google/uuid"
)

type fakeWatermarks struct {
	mu     sync.Mutex
	values map[string]time.Time
	sets   []time.Time
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{values: make(map[string]time.Time)}
}

func (f *fakeWatermarks) Get(_ context.Context, key string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeWatermarks) Set(_ context.Context, key string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.After(f.values[key]) {
		f.values[key] = t
	}
	f.sets = append(f.sets, t)
	return nil
}

type fakeQueue struct {
	tasks     []domain.ScanTask
	failAfter int // после стольких задач Enqueue возвращает ошибку; 0 - никогда
}

func (f *fakeQueue) Enqueue(_ context.Context, task domain.ScanTask) error {
	if f.failAfter > 0 && len(f.tasks) >= f.failAfter {
		return errors.New("queue unavailable")
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeClient struct {
	total    int
	messages []domain.RegistryMessage
	fetchErr error
	queries  []domain.PageQuery

	byGUID map[uuid.UUID]domain.RegistryMessage
	linked []domain.RegistryMessage
}

func (f *fakeClient) Authenticate(context.Context) error { return nil }

func (f *fakeClient) FetchMessagesPage(_ context.Context, q domain.PageQuery) (*domain.MessagePage, error) {
	f.queries = append(f.queries, q)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	end := min(q.Offset+q.Limit, len(f.messages))
	start := min(q.Offset, end)
	return &domain.MessagePage{Total: f.total, Messages: f.messages[start:end]}, nil
}

func (f *fakeClient) GetMessage(_ context.Context, guid uuid.UUID) (*domain.RegistryMessage, error) {
	msg, ok := f.byGUID[guid]
	if !ok {
		return nil, &domain.ApiError{Kind: domain.FailureClient, StatusCode: 404}
	}
	return &msg, nil
}

func (f *fakeClient) GetLinkedMessages(context.Context, uuid.UUID) ([]domain.RegistryMessage, error) {
	return f.linked, nil
}

func (f *fakeClient) Close() error { return nil }

// fakeDecodePool декодирует синхронно: контент "bad" - ошибка разбора,
// тип "Unknown" - неподдерживаемый тип, иначе один лот с описанием из контента
type fakeDecodePool struct{}

func (fakeDecodePool) Submit(_ context.Context, msg domain.RegistryMessage) (<-chan port.DecodeResult, error) {
	ch := make(chan port.DecodeResult, 1)
	switch {
	case msg.Type == "Unknown":
		ch <- port.DecodeResult{Err: domain.ErrUnsupportedMessageType}
	case msg.Content == "bad":
		ch <- port.DecodeResult{Err: &domain.DecodeError{MessageGUID: msg.GUID, Err: errors.New("malformed")}}
	default:
		tradeGUID := msg.GUID
		ch <- port.DecodeResult{Document: domain.DecodedDocument{
			Trade:       domain.Trade{GUID: tradeGUID},
			Lots:        []domain.Lot{domain.NewLot(domain.LotParams{TradeGUID: tradeGUID, Number: 1, Description: msg.Content})},
			MessageGUID: msg.GUID,
			MessageType: msg.Type,
		}}
	}
	return ch, nil
}

func (fakeDecodePool) Close() error { return nil }

type fakeIngest struct {
	calls []domain.RegistryMessage
	err   error
}

func (f *fakeIngest) Execute(_ context.Context, msg domain.RegistryMessage, doc domain.DecodedDocument) (domain.IngestOutcome, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return domain.IngestOutcome{}, f.err
	}
	return domain.IngestOutcome{Persisted: true, InScope: len(doc.Lots), NewLots: 1}, nil
}

type progressCall struct {
	task    domain.ScanTask
	success bool
}

type fakeProgress struct {
	calls []progressCall
}

func (f *fakeProgress) Complete(_ context.Context, task domain.ScanTask, success bool) {
	f.calls = append(f.calls, progressCall{task: task, success: success})
}

func message(content string) domain.RegistryMessage {
	return domain.RegistryMessage{GUID: uuid.New(), Type: domain.MessageTypeAuction2, Content: content}
}
