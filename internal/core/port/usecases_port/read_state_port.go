package usecases_port

import (
	"context"
	"time"
)

type ReadScanStatePort interface {
	// Execute возвращает водяной знак потока и признак незавершенного прохода
	Execute(ctx context.Context, taskKey string) (watermark time.Time, passInFlight bool, err error)
}
