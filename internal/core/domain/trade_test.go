package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewLotDefaultsAndCopies(t *testing.T) {
	cadastral := []string{"77:01:0001001:456"}
	lot := NewLot(LotParams{
		TradeGUID:        uuid.New(),
		CadastralNumbers: cadastral,
	})

	if lot.Number != 1 {
		t.Errorf("Number = %d, want 1", lot.Number)
	}
	if lot.Status != LotStatusAnnounced {
		t.Errorf("Status = %q, want %q", lot.Status, LotStatusAnnounced)
	}

	cadastral[0] = "mutated"
	if lot.CadastralNumbers[0] != "77:01:0001001:456" {
		t.Error("lot shares cadastral slice with caller")
	}
}

func TestLotWithClassificationLeavesOriginal(t *testing.T) {
	lot := NewLot(LotParams{Number: 2})
	tags := []string{"мкд"}
	classified := lot.WithClassification(Classification{Tags: tags, Score: 20})

	if len(lot.Classification.Tags) != 0 {
		t.Error("original lot was modified")
	}
	tags[0] = "mutated"
	if classified.Classification.Tags[0] != "мкд" {
		t.Error("classified lot shares tags slice with caller")
	}
}

func TestSaveResultCreatedCount(t *testing.T) {
	price := decimal.NewFromInt(100)
	res := SaveResult{Lots: []SavedLot{
		{ID: 1, Created: true, Lot: NewLot(LotParams{StartPrice: &price})},
		{ID: 2},
		{ID: 3, Created: true},
	}}
	if got := res.CreatedCount(); got != 2 {
		t.Errorf("CreatedCount() = %d, want 2", got)
	}
}
