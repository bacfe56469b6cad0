package usecase

import (
	"context"
	"fmt"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"

	"github.com/google/uuid"
)

// ReingestMessageUseCase заново проводит одно сообщение (и, по запросу, связанные с ним)
// через декодирование, фильтр и сохранение
type ReingestMessageUseCase struct {
	client   port.RegistryClientPort
	pipeline documentPipeline
}

var _ usecases_port.ReingestMessagePort = (*ReingestMessageUseCase)(nil)

func NewReingestMessageUseCase(client port.RegistryClientPort, decodePool port.DecodePoolPort, ingestUC usecases_port.IngestDocumentPort) *ReingestMessageUseCase {
	return &ReingestMessageUseCase{
		client:   client,
		pipeline: documentPipeline{decodePool: decodePool, ingestUC: ingestUC},
	}
}

func (uc *ReingestMessageUseCase) Execute(ctx context.Context, guid uuid.UUID, withLinked bool) (domain.ScanStats, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case":     "ReingestMessage",
		"message_guid": guid.String(),
	})

	msg, err := uc.client.GetMessage(ctx, guid)
	if err != nil {
		return domain.ScanStats{}, fmt.Errorf("get message %s: %w", guid, err)
	}
	msgs := []domain.RegistryMessage{*msg}

	if withLinked {
		linked, err := uc.client.GetLinkedMessages(ctx, guid)
		if err != nil {
			return domain.ScanStats{}, fmt.Errorf("get linked messages of %s: %w", guid, err)
		}
		msgs = append(msgs, linked...)
	}

	stats, err := uc.pipeline.run(ctx, msgs, ucLogger)
	if err != nil {
		return stats, err
	}
	ucLogger.Info("Message reingested", statsFields(stats))
	return stats, nil
}
