package features

import (
	"time"

	"github.com/markcheno/go-talib"

	"gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/market_data"
)

// Reference ceilings used for normalization. Values above a ceiling are not clamped.
const (
	SpreadCeilingTicks = 200.0
	VolumeCeiling      = 1000.0
	maxTimeframeRank   = 2.0
)

// Config controls feature construction
type Config struct {
	MAWindow         int // SMA length on the trend series, clamped to series length
	SessionStartHour int // inclusive, UTC
	SessionEndHour   int // exclusive, UTC; may be lower than start to wrap midnight
}

// Input carries the market context of one candidate gap
type Input struct {
	Symbol       string
	Tier         market_data.Tier
	GapSize      float64
	SpreadTicks  float64
	RecentVolume float64
	TrendSeries  []market_data.Bar // most-recent-first; nil when the fetch failed
	At           time.Time
}

// TrendSummary describes the reference series relative to its SMA
type TrendSummary struct {
	LastClose float64
	SMA       float64
	Period    int
}

// Sign is +1 when the last close is above the SMA, -1 otherwise
func (t TrendSummary) Sign() float64 {
	if t.LastClose > t.SMA {
		return 1
	}
	return -1
}

// Builder turns gap context into feature vectors
type Builder struct {
	cfg Config
}

// NewBuilder creates a feature builder
func NewBuilder(cfg Config) *Builder {
	if cfg.MAWindow <= 0 {
		cfg.MAWindow = 50
	}
	return &Builder{cfg: cfg}
}

// Build produces the 6-element vector:
// [trendSign, gapSize/refClose, tier/2, spread/200, session, volume/1000].
// Without a usable trend series the zero vector is returned, which the
// classifier maps to probability 0.5.
func (b *Builder) Build(in Input) classifier.FeatureVector {
	var v classifier.FeatureVector

	trend, ok := Summarize(in.TrendSeries, b.cfg.MAWindow)
	if !ok {
		return v
	}

	v[classifier.FeatureTrendSign] = trend.Sign()
	v[classifier.FeatureGapSize] = safeDiv(in.GapSize, trend.LastClose)
	v[classifier.FeatureTimeframeRank] = float64(in.Tier) / maxTimeframeRank
	v[classifier.FeatureSpread] = safeDiv(in.SpreadTicks, SpreadCeilingTicks)
	if b.InSession(in.At) {
		v[classifier.FeatureSession] = 1
	}
	v[classifier.FeatureRecentVolume] = safeDiv(in.RecentVolume, VolumeCeiling)

	return v
}

// InSession reports whether t's UTC hour falls in the active window
func (b *Builder) InSession(t time.Time) bool {
	start, end := b.cfg.SessionStartHour, b.cfg.SessionEndHour
	if start == end {
		return false
	}
	hour := t.UTC().Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Summarize computes the SMA of the last window closes of a
// most-recent-first series. ok is false for an empty series.
func Summarize(series []market_data.Bar, window int) (TrendSummary, bool) {
	if len(series) == 0 {
		return TrendSummary{}, false
	}

	period := window
	if period > len(series) {
		period = len(series)
	}
	if period < 1 {
		period = 1
	}

	// talib expects oldest first
	closes := market_data.Closes(market_data.Chronological(series))
	last := closes[len(closes)-1]

	sma := last
	if period > 1 {
		values := talib.Sma(closes, period)
		if len(values) == 0 {
			return TrendSummary{}, false
		}
		sma = values[len(values)-1]
	}

	return TrendSummary{LastClose: last, SMA: sma, Period: period}, true
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
