package usecase

import (
	"context"
	"fmt"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"
)

// ProcessScanTaskUseCase проходит одно окно реестра постранично:
// страница -> пул декодирования -> фильтр и сохранение
type ProcessScanTaskUseCase struct {
	client    port.RegistryClientPort
	pipeline  documentPipeline
	progress  port.ScanProgressPort
	pageLimit int
}

var _ usecases_port.ProcessScanTaskPort = (*ProcessScanTaskUseCase)(nil)

func NewProcessScanTaskUseCase(
	client port.RegistryClientPort,
	decodePool port.DecodePoolPort,
	ingestUC usecases_port.IngestDocumentPort,
	progress port.ScanProgressPort,
	pageLimit int,
) *ProcessScanTaskUseCase {
	return &ProcessScanTaskUseCase{
		client:    client,
		pipeline:  documentPipeline{decodePool: decodePool, ingestUC: ingestUC},
		progress:  progress,
		pageLimit: pageLimit,
	}
}

// Execute возвращает ошибку задачи как есть, решение о повторе принимает потребитель очереди.
// Водяной знак сдвигается только после того, как все документы окна сохранены.
func (uc *ProcessScanTaskUseCase) Execute(ctx context.Context, task domain.ScanTask) (domain.ScanStats, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "ProcessScanTask",
		"source":   string(task.Source),
	})

	var stats domain.ScanStats
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := uc.client.FetchMessagesPage(ctx, domain.PageQuery{
			Source: task.Source,
			Start:  task.Start,
			End:    task.End,
			Types:  task.Types,
			Limit:  uc.pageLimit,
			Offset: offset,
		})
		if err != nil {
			ucLogger.Error("Failed to fetch registry page", err, port.Fields{"offset": offset})
			return stats, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}

		pageStats, err := uc.pipeline.run(ctx, page.Messages, ucLogger)
		stats.Add(pageStats)
		if err != nil {
			ucLogger.Error("Failed to process registry page", err, port.Fields{"offset": offset})
			return stats, err
		}

		ucLogger.Debug("Registry page processed", port.Fields{
			"offset":   offset,
			"messages": len(page.Messages),
			"total":    page.Total,
		})

		offset += len(page.Messages)
		if len(page.Messages) == 0 || offset >= page.Total {
			break
		}
	}

	uc.progress.Complete(ctx, task, true)
	ucLogger.Info("Scan task completed", statsFields(stats))
	return stats, nil
}

// Abandon фиксирует окончательную неудачу: окно не засчитывается в водяной знак
// и будет покрыто перекрытием следующего прохода
func (uc *ProcessScanTaskUseCase) Abandon(ctx context.Context, task domain.ScanTask, cause error) {
	contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"use_case": "ProcessScanTask"}).Error(
		"Scan task abandoned", cause, port.Fields{
			"disposition": domain.ClassifyTaskError(cause).String(),
			"attempt":     task.Attempt,
		})
	uc.progress.Complete(ctx, task, false)
}

func statsFields(s domain.ScanStats) port.Fields {
	return port.Fields{
		"fetched":  s.Fetched,
		"ingested": s.Ingested,
		"new_lots": s.NewLots,
		"skipped":  s.Skipped,
		"filtered": s.Filtered,
		"failed":   s.Failed,
	}
}
