package semanticfilter

import (
	"testing"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/core/domain"
)

func defaultFilter() *SemanticFilterAdapter {
	return NewSemanticFilterAdapter(Config{
		TargetCodes:     constants.DefaultTargetCodes,
		IncludeKeywords: constants.DefaultIncludeKeywords,
		ExcludeKeywords: constants.DefaultExcludeKeywords,
	})
}

func TestFilterPrecedence(t *testing.T) {
	f := defaultFilter()

	tests := []struct {
		name        string
		description string
		code        string
		want        bool
	}{
		{"target code without keywords", "Нежилое здание", "0108001", true},
		{"exclude wins over target code", "Садовый участок в СНТ «Ромашка»", "0108001", false},
		{"include keyword with other code", "Земельный участок под МНОГОКВАРТИРНУЮ застройку", "0101001", true},
		{"include keyword without code", "Участок в зоне Ж-1", "", true},
		{"exclude wins over include keyword", "Многоквартирный дом, рядом гараж", "", false},
		{"neither path", "Легковой автомобиль", "0301001", false},
		{"empty lot", "", "", false},
		{"code with spaces", "Объект", " 0402006 ", true},
		{"exclude keyword inside compound word", "Многоквартирный дом и автогаражи", "", false},
		{"compound exclude wins over target code", "МКД, подземный автогараж", "0108001", false},
		{"exclude keyword matched mid-word", "Передача прав на многоквартирный дом", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot := domain.NewLot(domain.LotParams{Description: tt.description, ClassifierCode: tt.code})
			if got := f.IsInScope(lot); got != tt.want {
				t.Errorf("IsInScope() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterIsCaseInsensitiveForCyrillic(t *testing.T) {
	f := NewSemanticFilterAdapter(Config{IncludeKeywords: []string{"ЖИЛАЯ ЗАСТРОЙКА"}, ExcludeKeywords: []string{"Дача"}})

	if !f.IsInScope(domain.NewLot(domain.LotParams{Description: "под жилая застройка"})) {
		t.Error("upper-case keyword did not match lower-case text")
	}
	if f.IsInScope(domain.NewLot(domain.LotParams{Description: "ДАЧА и жилая застройка"})) {
		t.Error("upper-case text did not trigger exclude keyword")
	}
}

func TestContainsAt(t *testing.T) {
	tests := []struct {
		text, kw             string
		wordStart, wholeWord bool
		want                 bool
	}{
		{"продается сад", "сад", true, true, true},
		{"садовый дом", "сад", true, true, false},
		{"садовый дом", "сад", true, false, true},
		{"посадка", "сад", true, false, false},
		{"посадка", "сад", false, false, true},
		{"бц «север», бц", "бц", true, true, true},
		{"", "бц", false, false, false},
	}
	for _, tt := range tests {
		if got := containsAt(tt.text, tt.kw, tt.wordStart, tt.wholeWord); got != tt.want {
			t.Errorf("containsAt(%q, %q, %v, %v) = %v, want %v", tt.text, tt.kw, tt.wordStart, tt.wholeWord, got, tt.want)
		}
	}
}
