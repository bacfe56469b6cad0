package usecases_port

import (
	"context"
	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

type ReingestMessagePort interface {
	Execute(ctx context.Context, guid uuid.UUID, withLinked bool) (domain.ScanStats, error)
}
