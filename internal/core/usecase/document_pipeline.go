package usecase

import (
	"context"
	"errors"
	"fmt"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
)

// documentPipeline передает сообщения в пул декодирования и затем
// по порядку документов отдает результаты в ingest
type documentPipeline struct {
	decodePool port.DecodePoolPort
	ingestUC   usecases_port.IngestDocumentPort
}

type pendingDecode struct {
	msg    domain.RegistryMessage
	result <-chan port.DecodeResult
}

// run обрабатывает пачку сообщений. Сбой декодирования одного документа
// учитывается в Failed и не прерывает пачку. Ошибка хранилища прерывает ее.
func (p documentPipeline) run(ctx context.Context, msgs []domain.RegistryMessage, logger port.LoggerPort) (domain.ScanStats, error) {
	var stats domain.ScanStats
	pending := make([]pendingDecode, 0, len(msgs))

	for _, msg := range msgs {
		stats.Fetched++
		if msg.Content == "" {
			stats.Skipped++
			continue
		}
		ch, err := p.decodePool.Submit(ctx, msg)
		if err != nil {
			return stats, fmt.Errorf("failed to hand off message %s for decoding: %w", msg.GUID, err)
		}
		pending = append(pending, pendingDecode{msg: msg, result: ch})
	}

	// результаты читаются в порядке документов, независимо от порядка декодирования
	for _, pd := range pending {
		res := <-pd.result
		msgLogger := logger.WithFields(port.Fields{"message_guid": pd.msg.GUID.String(), "message_type": pd.msg.Type})

		if res.Err != nil {
			if errors.Is(res.Err, domain.ErrUnsupportedMessageType) {
				stats.Skipped++
				msgLogger.Debug("Message type has no decoder, skipped", nil)
				continue
			}
			stats.Failed++
			msgLogger.Warn("Failed to decode message, skipped", port.Fields{"error": res.Err.Error()})
			continue
		}

		outcome, err := p.ingestUC.Execute(ctx, pd.msg, res.Document)
		if err != nil {
			return stats, err
		}
		stats.Filtered += outcome.Filtered
		stats.NewLots += outcome.NewLots
		if outcome.Persisted {
			stats.Ingested++
		}
	}
	return stats, nil
}
