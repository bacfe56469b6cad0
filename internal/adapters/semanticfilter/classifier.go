package semanticfilter

import (
	"strings"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

type keywordGroup struct {
	name     string
	keywords []string
}

// Целевые объекты: коммерческая недвижимость и земля под застройку
var targetGroups = []keywordGroup{
	{"земельный_участок", []string{"земельный участок", "земельные участки", "зу", "зем. участок"}},
	{"мкд", []string{"многоквартирный дом", "жилой дом", "мкд"}},
	{"офисный_центр", []string{"офисное здание", "офисный центр", "бизнес-центр", "бц"}},
	{"торговая_недвижимость", []string{"торговый центр", "тц", "магазин", "торговое помещение"}},
	{"производство", []string{"производственное здание", "цех", "склад", "ангар"}},
	{"гостиница", []string{"гостиница", "отель", "хостел"}},
	{"апартаменты", []string{"апартаменты", "апарт-отель"}},
}

// Объекты, которые не интересны
var trashGroups = []keywordGroup{
	{"снт", []string{"снт", "садовое товарищество", "дачный участок", "сад"}},
	{"гараж", []string{"гараж", "машиноместо", "парковочное место"}},
	{"доля_в_праве", []string{"доля в праве", "1/2 доля", "1/3 доля", "долевая собственность"}},
	{"квартира", []string{"квартира", "комната"}},
	{"жилое_помещение", []string{"жилое помещение"}},
	{"транспорт", []string{"автомобиль", "машина", "транспортное средство", "авто"}},
	{"оборудование", []string{"оборудование", "станок", "инструмент"}},
}

// Риски
var redFlagGroups = []keywordGroup{
	{"окн", []string{"объект культурного наследия", "окн", "памятник архитектуры", "выявленный объект"}},
	{"обременение", []string{"обременение", "залог", "ипотека", "арест"}},
	{"аварийное", []string{"аварийное состояние", "ветхое", "под снос"}},
	{"незавершенка", []string{"незавершенное строительство", "объект незавершенного"}},
	{"приказ_5", []string{"приказ №5", "приказ № 5", "приказ n5", "приказ no5"}},
}

var highValueTags = map[string]struct{}{
	"мкд":                   {},
	"офисный_центр":         {},
	"торговая_недвижимость": {},
	"гостиница":             {},
}

const (
	tagWeight     = 20
	trashPenalty  = 30
	redFlagWeight = 10
)

// KeywordClassifierAdapter обогащает лот тегами, красными флагами, оценкой и зоной.
// На попадание лота в выборку не влияет.
type KeywordClassifierAdapter struct {
	targets  []keywordGroup
	trash    []keywordGroup
	redFlags []keywordGroup
}

var _ port.LotClassifierPort = (*KeywordClassifierAdapter)(nil)

func NewKeywordClassifierAdapter() *KeywordClassifierAdapter {
	return &KeywordClassifierAdapter{
		targets:  foldGroups(targetGroups),
		trash:    foldGroups(trashGroups),
		redFlags: foldGroups(redFlagGroups),
	}
}

func (c *KeywordClassifierAdapter) Classify(lot domain.Lot) domain.Classification {
	result := domain.Classification{Zone: zoneOf(lot.CadastralNumbers)}

	text := fold(lot.Description)
	if text == "" {
		return result
	}
	code := fold(lot.ClassifierCode)

	trashCount := 0
	for _, g := range c.targets {
		if containsWord(text, g.keywords) {
			result.Tags = append(result.Tags, g.name)
		}
	}
	for _, g := range c.trash {
		if containsWord(text, g.keywords) {
			trashCount++
		}
	}
	for _, g := range c.redFlags {
		if containsWord(text, g.keywords) || containsWord(code, g.keywords) {
			result.RedFlags = append(result.RedFlags, g.name)
		}
	}

	score := len(result.Tags)*tagWeight - trashCount*trashPenalty - len(result.RedFlags)*redFlagWeight
	result.Score = min(max(score, 0), 100)
	return result
}

// IsHighValue - коммерческий объект в пределах ТТК
func (c *KeywordClassifierAdapter) IsHighValue(cl domain.Classification) bool {
	if cl.Zone != domain.ZoneGardenRing && cl.Zone != domain.ZoneTTK {
		return false
	}
	for _, tag := range cl.Tags {
		if _, ok := highValueTags[tag]; ok {
			return true
		}
	}
	return false
}

// zoneOf грубо определяет зону по первому кадастровому номеру:
// квартал 77:01 - центр в пределах Садового кольца, остальная Москва - ТТК
func zoneOf(cadastral []string) domain.LocationZone {
	if len(cadastral) == 0 {
		return ""
	}
	first := cadastral[0]
	switch {
	case strings.HasPrefix(first, "77:01:"):
		return domain.ZoneGardenRing
	case strings.HasPrefix(first, "77:"):
		return domain.ZoneTTK
	default:
		return domain.ZoneOutside
	}
}

func foldGroups(groups []keywordGroup) []keywordGroup {
	out := make([]keywordGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, keywordGroup{name: g.name, keywords: foldAll(g.keywords)})
	}
	return out
}
