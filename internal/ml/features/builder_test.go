package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/market_data"
)

// series builds a most-recent-first bar series from chronological closes
func series(chronoCloses ...float64) []market_data.Bar {
	bars := make([]market_data.Bar, len(chronoCloses))
	for i, c := range chronoCloses {
		bars[len(chronoCloses)-1-i] = market_data.Bar{Close: c, High: c, Low: c, Open: c}
	}
	return bars
}

func TestSummarize(t *testing.T) {
	t.Run("uptrend", func(t *testing.T) {
		s, ok := Summarize(series(1, 2, 3, 4, 5), 5)
		require.True(t, ok)
		assert.Equal(t, 5.0, s.LastClose)
		assert.InDelta(t, 3.0, s.SMA, 1e-9)
		assert.Equal(t, 1.0, s.Sign())
	})

	t.Run("window clamped to series length", func(t *testing.T) {
		s, ok := Summarize(series(5, 4, 3), 50)
		require.True(t, ok)
		assert.Equal(t, 3, s.Period)
		assert.InDelta(t, 4.0, s.SMA, 1e-9)
		assert.Equal(t, -1.0, s.Sign())
	})

	t.Run("uses only the last window closes", func(t *testing.T) {
		s, ok := Summarize(series(100, 100, 1, 2, 3), 3)
		require.True(t, ok)
		assert.InDelta(t, 2.0, s.SMA, 1e-9)
	})

	t.Run("flat series is not above its average", func(t *testing.T) {
		s, ok := Summarize(series(7, 7, 7), 3)
		require.True(t, ok)
		assert.Equal(t, -1.0, s.Sign())
	})

	t.Run("single bar", func(t *testing.T) {
		s, ok := Summarize(series(9), 50)
		require.True(t, ok)
		assert.Equal(t, 9.0, s.SMA)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := Summarize(nil, 50)
		assert.False(t, ok)
	})
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(Config{MAWindow: 3, SessionStartHour: 7, SessionEndHour: 20})

	v := b.Build(Input{
		Symbol:       "BTCUSDT",
		Tier:         market_data.TierMedium,
		GapSize:      2,
		SpreadTicks:  50,
		RecentVolume: 2500,
		TrendSeries:  series(90, 95, 100),
		At:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, 1.0, v[classifier.FeatureTrendSign])
	assert.InDelta(t, 0.02, v[classifier.FeatureGapSize], 1e-12)
	assert.Equal(t, 0.5, v[classifier.FeatureTimeframeRank])
	assert.Equal(t, 0.25, v[classifier.FeatureSpread])
	assert.Equal(t, 1.0, v[classifier.FeatureSession])
	assert.Equal(t, 2.5, v[classifier.FeatureRecentVolume], "volume above ceiling is not clamped")
}

func TestBuilder_DegradedTrendSeriesYieldsZeroVector(t *testing.T) {
	b := NewBuilder(Config{MAWindow: 50, SessionStartHour: 0, SessionEndHour: 24})

	v := b.Build(Input{
		Tier:         market_data.TierCoarse,
		GapSize:      5,
		SpreadTicks:  10,
		RecentVolume: 100,
		TrendSeries:  nil,
		At:           time.Now(),
	})

	assert.True(t, v.IsZero())
}

func TestBuilder_ZeroReferenceCloseDegradesGapSize(t *testing.T) {
	b := NewBuilder(Config{MAWindow: 2})

	v := b.Build(Input{GapSize: 3, TrendSeries: series(0, 0)})
	assert.Equal(t, 0.0, v[classifier.FeatureGapSize])
	assert.Equal(t, -1.0, v[classifier.FeatureTrendSign])
}

func TestBuilder_InSession(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 30, 0, 0, time.UTC) }

	day := NewBuilder(Config{SessionStartHour: 7, SessionEndHour: 20})
	assert.False(t, day.InSession(at(6)))
	assert.True(t, day.InSession(at(7)))
	assert.True(t, day.InSession(at(19)))
	assert.False(t, day.InSession(at(20)))

	overnight := NewBuilder(Config{SessionStartHour: 22, SessionEndHour: 3})
	assert.True(t, overnight.InSession(at(23)))
	assert.True(t, overnight.InSession(at(2)))
	assert.False(t, overnight.InSession(at(12)))

	disabled := NewBuilder(Config{SessionStartHour: 5, SessionEndHour: 5})
	assert.False(t, disabled.InSession(at(5)))

	// Non-UTC input is converted before comparing hours.
	loc := time.FixedZone("UTC+3", 3*3600)
	assert.True(t, day.InSession(time.Date(2024, 1, 1, 10, 0, 0, 0, loc)))
}
