package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gapsentry/internal/domain/market_data"
	"gapsentry/pkg/errors"
)

func TestBuildBarsQuery(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name     string
		query    market_data.BarQuery
		contains []string
		absent   []string
		args     int
	}{
		{
			name:     "symbol and timeframe only",
			query:    market_data.BarQuery{Symbol: "BTCUSDT", Timeframe: "5m"},
			contains: []string{"symbol = $1 AND timeframe = $2", "ORDER BY open_time DESC"},
			absent:   []string{"open_time >=", "open_time <=", "LIMIT"},
			args:     2,
		},
		{
			name:     "full window",
			query:    market_data.BarQuery{Symbol: "BTCUSDT", Timeframe: "5m", StartTime: start, EndTime: end, Limit: 500},
			contains: []string{"open_time >= $3", "open_time <= $4", "LIMIT $5"},
			args:     5,
		},
		{
			name:     "end and limit only",
			query:    market_data.BarQuery{Symbol: "ETHUSDT", Timeframe: "1h", EndTime: end, Limit: 10},
			contains: []string{"open_time <= $3", "LIMIT $4"},
			absent:   []string{"open_time >="},
			args:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildBarsQuery(tt.query)
			for _, s := range tt.contains {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, sql, s)
			}
			assert.Len(t, args, tt.args)
		})
	}
}

func TestGetBars_RequiresSymbolAndTimeframe(t *testing.T) {
	repo := NewMarketDataRepository(nil)

	_, err := repo.GetBars(context.Background(), market_data.BarQuery{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestInsertBars_EmptyIsNoop(t *testing.T) {
	repo := NewMarketDataRepository(nil)
	assert.NoError(t, repo.InsertBars(context.Background(), nil))
}
