package usecase

import (
	"context"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
)

// IngestDocumentUseCase фильтрует лоты документа, обогащает их классификацией,
// сохраняет документ одной транзакцией и сообщает о впервые увиденных лотах
type IngestDocumentUseCase struct {
	filter     port.LotFilterPort
	classifier port.LotClassifierPort
	storage    port.TradeStoragePort
	notifier   port.LotNotifierPort
	now        func() time.Time
}

var _ usecases_port.IngestDocumentPort = (*IngestDocumentUseCase)(nil)

func NewIngestDocumentUseCase(
	filter port.LotFilterPort,
	classifier port.LotClassifierPort,
	storage port.TradeStoragePort,
	notifier port.LotNotifierPort,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		filter:     filter,
		classifier: classifier,
		storage:    storage,
		notifier:   notifier,
		now:        time.Now,
	}
}

func (uc *IngestDocumentUseCase) Execute(ctx context.Context, msg domain.RegistryMessage, doc domain.DecodedDocument) (domain.IngestOutcome, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case":     "IngestDocument",
		"message_guid": msg.GUID.String(),
		"trade_guid":   doc.Trade.GUID.String(),
	})

	var outcome domain.IngestOutcome
	inScope := make([]domain.Lot, 0, len(doc.Lots))
	for _, lot := range doc.Lots {
		if !uc.filter.IsInScope(lot) {
			outcome.Filtered++
			continue
		}
		inScope = append(inScope, lot.WithClassification(uc.classifier.Classify(lot)))
	}
	outcome.InScope = len(inScope)

	if len(inScope) == 0 {
		ucLogger.Debug("No lots in scope, document not persisted", port.Fields{"lots": len(doc.Lots)})
		return outcome, nil
	}

	result, err := uc.storage.SaveDocument(ctx, msg, doc.WithLots(inScope))
	if err != nil {
		ucLogger.Error("Failed to persist document", err, nil)
		return outcome, err
	}
	outcome.Persisted = true

	detectedAt := uc.now()
	for _, saved := range result.Lots {
		if !saved.Created {
			continue
		}
		outcome.NewLots++
		uc.notifier.Notify(ctx, domain.NewLotEvent{
			LotID:       saved.ID,
			Lot:         saved.Lot,
			Trade:       doc.Trade,
			MessageGUID: msg.GUID,
			HighValue:   uc.classifier.IsHighValue(saved.Lot.Classification),
			DetectedAt:  detectedAt,
		})
	}

	ucLogger.Info("Document persisted", port.Fields{
		"in_scope": outcome.InScope,
		"filtered": outcome.Filtered,
		"new_lots": outcome.NewLots,
	})
	return outcome, nil
}
