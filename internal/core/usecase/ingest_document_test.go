package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

type keywordFilter struct{ keyword string }

func (f keywordFilter) IsInScope(lot domain.Lot) bool {
	return strings.Contains(lot.Description, f.keyword)
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(lot domain.Lot) domain.Classification {
	return domain.Classification{Tags: []string{"мкд"}, Score: 20, Zone: domain.ZoneGardenRing}
}

func (fixedClassifier) IsHighValue(c domain.Classification) bool {
	return c.Zone == domain.ZoneGardenRing
}

// fakeStorage имитирует upsert: лот создается при первой встрече пары (trade, number)
type fakeStorage struct {
	seen  map[string]int64
	saved []domain.DecodedDocument
	err   error
}

func (f *fakeStorage) SaveDocument(_ context.Context, _ domain.RegistryMessage, doc domain.DecodedDocument) (domain.SaveResult, error) {
	if f.err != nil {
		return domain.SaveResult{}, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]int64)
	}
	f.saved = append(f.saved, doc)

	var res domain.SaveResult
	for _, lot := range doc.Lots {
		key := fmt.Sprintf("%s/%d", lot.TradeGUID, lot.Number)
		id, ok := f.seen[key]
		if !ok {
			id = int64(len(f.seen) + 1)
			f.seen[key] = id
		}
		res.Lots = append(res.Lots, domain.SavedLot{ID: id, Lot: lot, Created: !ok})
	}
	return res, nil
}

type fakeNotifier struct {
	events []domain.NewLotEvent
}

func (f *fakeNotifier) Notify(_ context.Context, e domain.NewLotEvent) {
	f.events = append(f.events, e)
}

func twoLotDocument(tradeGUID uuid.UUID) domain.DecodedDocument {
	return domain.DecodedDocument{
		Trade: domain.Trade{GUID: tradeGUID},
		Lots: []domain.Lot{
			domain.NewLot(domain.LotParams{TradeGUID: tradeGUID, Number: 1, Description: "многоквартирный дом"}),
			domain.NewLot(domain.LotParams{TradeGUID: tradeGUID, Number: 2, Description: "садовый участок СНТ"}),
		},
	}
}

func newIngest(storage *fakeStorage, notifier *fakeNotifier) *IngestDocumentUseCase {
	uc := NewIngestDocumentUseCase(keywordFilter{"многоквартирный"}, fixedClassifier{}, storage, notifier)
	uc.now = func() time.Time { return day0 }
	return uc
}

func TestIngestPersistsOnlyInScopeLotsAndNotifiesOnce(t *testing.T) {
	storage := &fakeStorage{}
	notifier := &fakeNotifier{}
	uc := newIngest(storage, notifier)
	tradeGUID := uuid.New()
	msg := domain.RegistryMessage{GUID: uuid.New()}

	outcome, err := uc.Execute(context.Background(), msg, twoLotDocument(tradeGUID))
	if err != nil {
		t.Fatal(err)
	}
	want := domain.IngestOutcome{Persisted: true, InScope: 1, Filtered: 1, NewLots: 1}
	if outcome != want {
		t.Errorf("outcome = %+v, want %+v", outcome, want)
	}

	saved := storage.saved[0]
	if len(saved.Lots) != 1 || saved.Lots[0].Number != 1 {
		t.Fatalf("saved lots = %+v, want only lot 1", saved.Lots)
	}
	if saved.Lots[0].Classification.Score != 20 {
		t.Error("lot was saved without classification")
	}

	if len(notifier.events) != 1 {
		t.Fatalf("notified %d times, want 1", len(notifier.events))
	}
	ev := notifier.events[0]
	if !ev.HighValue || ev.MessageGUID != msg.GUID || ev.Trade.GUID != tradeGUID || !ev.DetectedAt.Equal(day0) {
		t.Errorf("event = %+v", ev)
	}

	// повторная встреча того же лота обновляет запись, но не уведомляет
	outcome, err = uc.Execute(context.Background(), msg, twoLotDocument(tradeGUID))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.NewLots != 0 || len(notifier.events) != 1 {
		t.Errorf("re-sighting produced %d new lots and %d events", outcome.NewLots, len(notifier.events))
	}
}

func TestIngestSkipsDocumentWithoutInScopeLots(t *testing.T) {
	storage := &fakeStorage{}
	uc := newIngest(storage, &fakeNotifier{})
	doc := twoLotDocument(uuid.New())
	doc = doc.WithLots(doc.Lots[1:])

	outcome, err := uc.Execute(context.Background(), domain.RegistryMessage{}, doc)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Persisted || outcome.Filtered != 1 || len(storage.saved) != 0 {
		t.Errorf("outcome = %+v, saved = %d; want nothing persisted", outcome, len(storage.saved))
	}
}

func TestIngestPropagatesPersistenceError(t *testing.T) {
	storage := &fakeStorage{err: &domain.PersistenceError{Op: "commit", Err: errors.New("disk full")}}
	notifier := &fakeNotifier{}
	uc := newIngest(storage, notifier)

	_, err := uc.Execute(context.Background(), domain.RegistryMessage{}, twoLotDocument(uuid.New()))
	var persistErr *domain.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Errorf("error = %v, want PersistenceError", err)
	}
	if len(notifier.events) != 0 {
		t.Error("notification sent for a rolled back document")
	}
}
