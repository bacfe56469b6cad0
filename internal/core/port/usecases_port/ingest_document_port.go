package usecases_port

import (
	"context"
	"fedresurs-radar/internal/core/domain"
)

type IngestDocumentPort interface {
	Execute(ctx context.Context, msg domain.RegistryMessage, doc domain.DecodedDocument) (domain.IngestOutcome, error)
}
