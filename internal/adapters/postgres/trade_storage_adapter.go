package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// PostgresTradeStorageAdapter реализует TradeStoragePort для PostgreSQL
type PostgresTradeStorageAdapter struct {
	pool *pgxpool.Pool
}

var _ port.TradeStoragePort = (*PostgresTradeStorageAdapter)(nil)

// NewPostgresTradeStorageAdapter создает новый экземпляр адаптера
func NewPostgresTradeStorageAdapter(pool *pgxpool.Pool) (*PostgresTradeStorageAdapter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &PostgresTradeStorageAdapter{pool: pool}, nil
}

// EnsureSchema создает таблицы, если их еще нет
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const upsertTradeSQL = `
	INSERT INTO trades (guid, number, platform_name, publish_date, is_annulled)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
	ON CONFLICT (guid) DO UPDATE SET
		number        = COALESCE(EXCLUDED.number, trades.number),
		platform_name = COALESCE(EXCLUDED.platform_name, trades.platform_name),
		publish_date  = COALESCE(EXCLUDED.publish_date, trades.publish_date),
		is_annulled   = trades.is_annulled OR EXCLUDED.is_annulled,
		last_seen_at  = now()
	RETURNING id, (xmax = 0) AS inserted`

const insertMessageSQL = `
	INSERT INTO messages (guid, trade_id, type, date_publish, content_xml)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (guid) DO NOTHING`

// (xmax = 0) истинно только для строки, вставленной этим же оператором:
// при срабатывании ON CONFLICT DO UPDATE xmax содержит id текущей транзакции
const upsertLotSQL = `
	INSERT INTO lots (
		guid, trade_id, lot_number, description, address,
		start_price, step_price, advance, status, classifier_code,
		cadastral_numbers, is_restricted, zone, semantic_tags, red_flags, score, message_guid
	) VALUES (
		$1, $2, $3, $4, $5,
		$6::numeric, $7::numeric, $8::numeric, $9, NULLIF($10, ''),
		$11, $12, NULLIF($13, ''), $14, $15, $16, $17
	)
	ON CONFLICT (trade_id, lot_number) DO UPDATE SET
		guid              = COALESCE(EXCLUDED.guid, lots.guid),
		description       = EXCLUDED.description,
		address           = EXCLUDED.address,
		start_price       = EXCLUDED.start_price,
		step_price        = EXCLUDED.step_price,
		advance           = EXCLUDED.advance,
		status            = EXCLUDED.status,
		classifier_code   = EXCLUDED.classifier_code,
		cadastral_numbers = EXCLUDED.cadastral_numbers,
		is_restricted     = EXCLUDED.is_restricted,
		zone              = EXCLUDED.zone,
		semantic_tags     = EXCLUDED.semantic_tags,
		red_flags         = EXCLUDED.red_flags,
		score             = EXCLUDED.score,
		message_guid      = EXCLUDED.message_guid,
		updated_at        = now()
	RETURNING id, (xmax = 0) AS inserted`

// SaveDocument сохраняет торги, исходное сообщение и лоты одной транзакцией.
// При ошибке транзакция откатывается целиком.
func (a *PostgresTradeStorageAdapter) SaveDocument(ctx context.Context, msg domain.RegistryMessage, doc domain.DecodedDocument) (domain.SaveResult, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return domain.SaveResult{}, &domain.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	var (
		tradeID   int64
		result    domain.SaveResult
		trade     = doc.Trade
		published = optionalTime(msg.PublishedAt)
	)

	err = tx.QueryRow(ctx, upsertTradeSQL,
		trade.GUID, trade.Number, trade.PlatformName, trade.PublishedAt, trade.IsAnnulled,
	).Scan(&tradeID, &result.TradeCreated)
	if err != nil {
		return domain.SaveResult{}, &domain.PersistenceError{Op: "upsert trade", Err: err}
	}

	if _, err = tx.Exec(ctx, insertMessageSQL, msg.GUID, tradeID, msg.Type, published, msg.Content); err != nil {
		return domain.SaveResult{}, &domain.PersistenceError{Op: "insert message", Err: err}
	}

	result.Lots = make([]domain.SavedLot, 0, len(doc.Lots))
	for _, lot := range doc.Lots {
		saved := domain.SavedLot{Lot: lot}
		err = tx.QueryRow(ctx, upsertLotSQL,
			lot.GUID, tradeID, lot.Number, lot.Description, lot.Address,
			numeric(lot.StartPrice), numeric(lot.StepPrice), numeric(lot.Advance), string(lot.Status), lot.ClassifierCode,
			nonNil(lot.CadastralNumbers), lot.IsRestricted, string(lot.Classification.Zone),
			nonNil(lot.Classification.Tags), nonNil(lot.Classification.RedFlags), lot.Classification.Score, lot.MessageGUID,
		).Scan(&saved.ID, &saved.Created)
		if err != nil {
			return domain.SaveResult{}, &domain.PersistenceError{
				Op:  fmt.Sprintf("upsert lot %d", lot.Number),
				Err: err,
			}
		}

		// график пересобирается целиком по последнему документу, пустой график очищает старый
		if err := replacePriceSchedule(ctx, tx, saved.ID, lot.PriceSchedule); err != nil {
			return domain.SaveResult{}, &domain.PersistenceError{
				Op:  fmt.Sprintf("replace price schedule of lot %d", lot.Number),
				Err: err,
			}
		}

		result.Lots = append(result.Lots, saved)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SaveResult{}, &domain.PersistenceError{Op: "commit", Err: err}
	}
	return result, nil
}

// replacePriceSchedule удаляет старый график и загружает новый через COPY.
// Цена копируется во временную таблицу текстом и приводится к numeric при вставке.
func replacePriceSchedule(ctx context.Context, tx pgx.Tx, lotID int64, schedule []domain.PriceSchedule) error {
	if _, err := tx.Exec(ctx, `DELETE FROM price_schedules WHERE lot_id = $1`, lotID); err != nil {
		return fmt.Errorf("failed to delete old schedule: %w", err)
	}
	if len(schedule) == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS temp_price_schedules (
			lot_id BIGINT, period_number INTEGER, price TEXT, date_start TIMESTAMPTZ, date_end TIMESTAMPTZ
		) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("failed to create temp table for price_schedules: %w", err)
	}

	rows := make([][]interface{}, 0, len(schedule))
	seen := make(map[int]struct{}, len(schedule))
	for _, p := range schedule {
		if _, dup := seen[p.Period]; dup {
			continue
		}
		seen[p.Period] = struct{}{}
		rows = append(rows, []interface{}{lotID, int32(p.Period), p.Price.String(), p.StartDate, p.EndDate})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"temp_price_schedules"},
		[]string{"lot_id", "period_number", "price", "date_start", "date_end"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to copy to temp_price_schedules: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO price_schedules (lot_id, period_number, price, date_start, date_end)
		SELECT lot_id, period_number, price::numeric, date_start, date_end
		FROM temp_price_schedules WHERE lot_id = $1`, lotID); err != nil {
		return fmt.Errorf("failed to merge from temp_price_schedules: %w", err)
	}
	_, err := tx.Exec(ctx, `DELETE FROM temp_price_schedules WHERE lot_id = $1`, lotID)
	return err
}

func numeric(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
