package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWatermarkAdapter хранит водяные знаки потоков в таблице system_state
type PostgresWatermarkAdapter struct {
	pool *pgxpool.Pool
}

var _ port.WatermarkRepositoryPort = (*PostgresWatermarkAdapter)(nil)

func NewPostgresWatermarkAdapter(pool *pgxpool.Pool) (*PostgresWatermarkAdapter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &PostgresWatermarkAdapter{pool: pool}, nil
}

func (a *PostgresWatermarkAdapter) Get(ctx context.Context, taskKey string) (time.Time, error) {
	var processed time.Time
	err := a.pool.QueryRow(ctx,
		`SELECT last_processed_date FROM system_state WHERE task_key = $1`, taskKey,
	).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &domain.PersistenceError{Op: "read watermark " + taskKey, Err: err}
	}
	return processed, nil
}

// Set не сдвигает водяной знак назад
func (a *PostgresWatermarkAdapter) Set(ctx context.Context, taskKey string, processedAt time.Time) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO system_state (task_key, last_processed_date, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (task_key) DO UPDATE SET
			last_processed_date = GREATEST(system_state.last_processed_date, EXCLUDED.last_processed_date),
			updated_at          = now()`,
		taskKey, processedAt,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "write watermark " + taskKey, Err: err}
	}
	return nil
}
