package semanticfilter

import (
	"strings"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

// Config - семантическое ядро фильтра
type Config struct {
	TargetCodes     []string
	IncludeKeywords []string
	ExcludeKeywords []string
}

// SemanticFilterAdapter решает, попадает ли лот в профиль.
// Порядок: стоп-слово исключает всегда; затем целевой код классификатора;
// затем ключевое слово в описании. Стоп-слова и ключевые слова ищутся
// как подстроки без учета регистра, поэтому "гараж" исключает и "автогараж".
type SemanticFilterAdapter struct {
	targetCodes map[string]struct{}
	include     []string
	exclude     []string
}

var _ port.LotFilterPort = (*SemanticFilterAdapter)(nil)

func NewSemanticFilterAdapter(cfg Config) *SemanticFilterAdapter {
	codes := make(map[string]struct{}, len(cfg.TargetCodes))
	for _, c := range cfg.TargetCodes {
		if c = strings.TrimSpace(c); c != "" {
			codes[c] = struct{}{}
		}
	}
	return &SemanticFilterAdapter{
		targetCodes: codes,
		include:     foldAll(cfg.IncludeKeywords),
		exclude:     foldAll(cfg.ExcludeKeywords),
	}
}

func (f *SemanticFilterAdapter) IsInScope(lot domain.Lot) bool {
	return f.decide(lot) == verdictInScope
}

type verdict int

const (
	verdictNoMatch verdict = iota
	verdictExcluded
	verdictInScope
)

func (f *SemanticFilterAdapter) decide(lot domain.Lot) verdict {
	text := fold(lot.Description)

	if _, ok := containsSubstring(text, f.exclude); ok {
		return verdictExcluded
	}
	if _, ok := f.targetCodes[strings.TrimSpace(lot.ClassifierCode)]; ok {
		return verdictInScope
	}
	if _, ok := containsSubstring(text, f.include); ok {
		return verdictInScope
	}
	return verdictNoMatch
}
