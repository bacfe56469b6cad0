package port

import "fedresurs-radar/internal/core/domain"

// LotFilterPort решает, попадает ли лот в целевой профиль
type LotFilterPort interface {
	IsInScope(lot domain.Lot) bool
}

// LotClassifierPort обогащает лот тегами, красными флагами и оценкой
type LotClassifierPort interface {
	Classify(lot domain.Lot) domain.Classification
	IsHighValue(c domain.Classification) bool
}
