package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"gapsentry/internal/domain/market_data"
	"gapsentry/pkg/errors"
)

// BarsSchema creates the bar history table
const BarsSchema = `
CREATE TABLE IF NOT EXISTS ohlcv (
	symbol    LowCardinality(String),
	timeframe LowCardinality(String),
	open_time DateTime64(3, 'UTC'),
	open      Float64,
	high      Float64,
	low       Float64,
	close     Float64,
	volume    Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, open_time)`

// Compile-time check
var _ market_data.Repository = (*MarketDataRepository)(nil)

// MarketDataRepository implements market_data.Repository using ClickHouse
type MarketDataRepository struct {
	conn driver.Conn
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(conn driver.Conn) *MarketDataRepository {
	return &MarketDataRepository{conn: conn}
}

// EnsureSchema creates the ohlcv table if missing
func (r *MarketDataRepository) EnsureSchema(ctx context.Context) error {
	return errors.Wrap(r.conn.Exec(ctx, BarsSchema), "create ohlcv")
}

// InsertBars inserts bars in one batch. Re-inserting a bar replaces it on merge.
func (r *MarketDataRepository) InsertBars(ctx context.Context, bars []market_data.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv (symbol, timeframe, open_time, open, high, low, close, volume)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, b := range bars {
		if err := batch.Append(b.Symbol, b.Timeframe, b.OpenTime, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return errors.Wrap(err, "failed to append bar")
		}
	}

	return batch.Send()
}

// GetBars returns a stored window most-recent-first
func (r *MarketDataRepository) GetBars(ctx context.Context, query market_data.BarQuery) ([]market_data.Bar, error) {
	if query.Symbol == "" || query.Timeframe == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "symbol and timeframe are required")
	}

	sql, args := buildBarsQuery(query)

	var bars []market_data.Bar
	if err := r.conn.Select(ctx, &bars, sql, args...); err != nil {
		return nil, errors.Wrapf(err, "select bars %s %s", query.Symbol, query.Timeframe)
	}
	return bars, nil
}

func buildBarsQuery(query market_data.BarQuery) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT symbol, timeframe, open_time, open, high, low, close, volume
		FROM ohlcv FINAL
		WHERE symbol = $1 AND timeframe = $2`)

	args := []any{query.Symbol, query.Timeframe}

	if !query.StartTime.IsZero() {
		args = append(args, query.StartTime)
		fmt.Fprintf(&sb, ` AND open_time >= $%d`, len(args))
	}
	if !query.EndTime.IsZero() {
		args = append(args, query.EndTime)
		fmt.Fprintf(&sb, ` AND open_time <= $%d`, len(args))
	}

	sb.WriteString(` ORDER BY open_time DESC`)

	if query.Limit > 0 {
		args = append(args, query.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	return sb.String(), args
}
