package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/domain/classifier"
	domain "gapsentry/internal/domain/decision"
	"gapsentry/internal/domain/gap"
	"gapsentry/internal/domain/market_data"
	"gapsentry/internal/ml/features"
	"gapsentry/pkg/errors"
)

// MockMarketData is a mock for exchanges.MarketData
type MockMarketData struct {
	mock.Mock
}

func (m *MockMarketData) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market_data.Bar, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market_data.Bar), args.Error(1)
}

func (m *MockMarketData) GetQuote(ctx context.Context, symbol string) (*market_data.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market_data.Quote), args.Error(1)
}

func (m *MockMarketData) ResolveSymbol(ctx context.Context, symbol string) (*market_data.SymbolInfo, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market_data.SymbolInfo), args.Error(1)
}

// MockExecution is a mock for exchanges.Execution
type MockExecution struct {
	mock.Mock
}

func (m *MockExecution) PlaceBracketOrder(ctx context.Context, req exchanges.BracketRequest) (*exchanges.BracketResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchanges.BracketResult), args.Error(1)
}

func (m *MockExecution) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	args := m.Called(ctx, symbol)
	return args.Bool(0), args.Error(1)
}

// MockModel is a mock for the shared classifier
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Predict(x classifier.FeatureVector) float64 {
	args := m.Called(x)
	return args.Get(0).(float64)
}

func (m *MockModel) Update(ctx context.Context, x classifier.FeatureVector, label float64) (classifier.State, error) {
	args := m.Called(ctx, x, label)
	return args.Get(0).(classifier.State), args.Error(1)
}

func (m *MockModel) SampleCount() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

// recordingReporter captures every report
type recordingReporter struct {
	decisions   []domain.Decision
	persistence []domain.PersistenceEvent
}

func (r *recordingReporter) ReportDecision(_ context.Context, d domain.Decision) {
	r.decisions = append(r.decisions, d)
}

func (r *recordingReporter) ReportPersistence(_ context.Context, e domain.PersistenceEvent) {
	r.persistence = append(r.persistence, e)
}

const sym = "BTCUSDT"

func baseConfig() Config {
	return Config{
		Timeframes:        DefaultTimeframes("5m", "15m", "1h"),
		TrendInterval:     "4h",
		BarsPerFetch:      200,
		TradeSize:         0.001,
		RiskReward:        2,
		StopBufferTicks:   10,
		MaxSpreadTicks:    30,
		OneTradePerSymbol: true,
		ClassifierEnabled: true,
		OnlineLearning:    true,
		Threshold:         0.55,
		WarmupSamples:     20,
		LookaheadBars:     50,
	}
}

// gapSeries is a most-recent-first series with a bullish gap [100, 103] on the newest bar
func gapSeries() []market_data.Bar {
	return []market_data.Bar{
		{High: 104, Low: 103, Close: 103.5, Volume: 2500},
		{High: 103.5, Low: 100.2, Close: 103},
		{High: 100, Low: 98, Close: 99},
	}
}

// flatSeries contains no gap at all
func flatSeries() []market_data.Bar {
	return []market_data.Bar{
		{High: 101, Low: 99}, {High: 101, Low: 99}, {High: 101, Low: 99}, {High: 101, Low: 99},
	}
}

func trendSeries() []market_data.Bar {
	return []market_data.Bar{{Close: 102}, {Close: 100}, {Close: 98}}
}

type fixture struct {
	market   *MockMarketData
	exec     *MockExecution
	model    *MockModel
	reporter *recordingReporter
}

func newFixture() *fixture {
	return &fixture{
		market:   new(MockMarketData),
		exec:     new(MockExecution),
		model:    new(MockModel),
		reporter: &recordingReporter{},
	}
}

func (f *fixture) engine(cfg Config) *Engine {
	builder := features.NewBuilder(features.Config{MAWindow: 50, SessionStartHour: 7, SessionEndHour: 20})
	return NewEngine(cfg, f.market, f.exec, f.model, builder, f.reporter)
}

func (f *fixture) tradable(bid, ask float64) {
	f.market.On("ResolveSymbol", mock.Anything, sym).Return(&market_data.SymbolInfo{Symbol: sym, TickSize: 0.01, Tradable: true}, nil)
	f.market.On("GetQuote", mock.Anything, sym).Return(&market_data.Quote{Symbol: sym, Bid: bid, Ask: ask}, nil)
}

func (f *fixture) bars(fine, medium, coarse []market_data.Bar) {
	f.market.On("GetBars", mock.Anything, sym, "5m", 200).Return(fine, nil)
	f.market.On("GetBars", mock.Anything, sym, "15m", 200).Return(medium, nil)
	f.market.On("GetBars", mock.Anything, sym, "1h", 200).Return(coarse, nil)
	f.market.On("GetBars", mock.Anything, sym, "4h", 200).Return(trendSeries(), nil)
}

func TestEngine_EndToEndClassifierDisabledAlwaysAllows(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.01)
	f.model.On("SampleCount").Return(int64(500))
	f.model.On("Update", mock.Anything, mock.Anything, 0.0).Return(classifier.State{SampleCount: 501}, nil)

	cfg := baseConfig()
	cfg.ClassifierEnabled = false

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	require.NotNil(t, d.Gap)
	assert.Equal(t, gap.Bullish, d.Gap.Direction)
	assert.Equal(t, 100.0, d.Gap.LowerBound)
	assert.Equal(t, 103.0, d.Gap.UpperBound)
	assert.Equal(t, 101.5, d.Gap.Midpoint)
	assert.InDelta(t, 102.0, d.Mid, 1e-9)

	assert.True(t, d.Allowed)
	assert.Equal(t, domain.StatusAllowed, d.Status)

	require.NotNil(t, d.Plan)
	assert.InDelta(t, 99.9, d.Plan.StopPrice, 1e-9)
	assert.InDelta(t, 106.2, d.Plan.TargetPrice, 1e-9)

	// Gap formed on the current bar: no forward bars, conservative loss
	require.NotNil(t, d.Outcome)
	assert.Equal(t, gap.Loss, *d.Outcome)
	assert.True(t, d.Learned)
	assert.Equal(t, int64(501), d.SampleCount)

	require.Len(t, f.reporter.decisions, 1)
	assert.Equal(t, d.Status, f.reporter.decisions[0].Status)
	f.model.AssertExpectations(t)
	f.exec.AssertNotCalled(t, "PlaceBracketOrder", mock.Anything, mock.Anything)
}

func TestEngine_BuildsFeaturesFromSelectedGap(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())

	var got classifier.FeatureVector
	f.model.On("Predict", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(0).(classifier.FeatureVector)
	}).Return(0.7)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 101}, nil)

	f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, 1.0, got[classifier.FeatureTrendSign], "last trend close 102 above SMA 100")
	assert.InDelta(t, 3.0/102.0, got[classifier.FeatureGapSize], 1e-12)
	assert.Equal(t, 0.0, got[classifier.FeatureTimeframeRank])
	assert.InDelta(t, 2.0/200.0, got[classifier.FeatureSpread], 1e-6)
	assert.Equal(t, 2.5, got[classifier.FeatureRecentVolume])
}

func TestEngine_WarmupNeverVetoes(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.01)
	f.model.On("SampleCount").Return(int64(3))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 4}, nil)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, 0.01, d.Probability)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.StatusAllowed, d.Status)
}

func TestEngine_BelowThresholdBlocksButStillLearns(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.3)
	f.model.On("SampleCount").Return(int64(50))
	f.model.On("Update", mock.Anything, mock.Anything, 0.0).Return(classifier.State{SampleCount: 51}, nil).Once()

	cfg := baseConfig()
	cfg.LiveTrading = true

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	assert.False(t, d.Allowed)
	assert.Equal(t, domain.StatusBlocked, d.Status)
	require.NotNil(t, d.Plan, "signal is still computed and reported")
	f.exec.AssertNotCalled(t, "PlaceBracketOrder", mock.Anything, mock.Anything)
	f.model.AssertExpectations(t)
}

func TestEngine_ThresholdIsInclusive(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.55)
	f.model.On("SampleCount").Return(int64(50))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 51}, nil)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)
	assert.True(t, d.Allowed)
}

func TestEngine_FineTimeframeTakesPriority(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), gapSeries(), gapSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{}, nil)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	require.NotNil(t, d.Gap)
	assert.Equal(t, market_data.TierFine, d.Gap.Timeframe.Tier)
	f.model.AssertNumberOfCalls(t, "Update", 1)
}

func TestEngine_FallsThroughToCoarserTimeframe(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(flatSeries(), flatSeries(), gapSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{}, nil)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	require.NotNil(t, d.Gap)
	assert.Equal(t, market_data.TierCoarse, d.Gap.Timeframe.Tier)
	assert.Equal(t, "1h", d.Gap.Timeframe.Interval)
}

func TestEngine_NoGapContainingMid(t *testing.T) {
	f := newFixture()
	f.tradable(109.99, 110.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusNoSignal, d.Status)
	assert.Nil(t, d.Gap)
	f.model.AssertNotCalled(t, "Predict", mock.Anything)
	f.model.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_SkipsWhenSpreadTooWide(t *testing.T) {
	f := newFixture()
	f.tradable(101.5, 102.5) // 100 ticks

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusSkipped, d.Status)
	assert.Contains(t, d.Reason, errors.ErrSpreadTooWide.Error())
	f.market.AssertNotCalled(t, "GetBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_SkipsUnresolvableSymbol(t *testing.T) {
	f := newFixture()
	f.market.On("ResolveSymbol", mock.Anything, sym).Return(nil, errors.ErrInvalidSymbol)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusSkipped, d.Status)
	f.market.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestEngine_AbortsWhenAnyTimeframeFetchFails(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.market.On("GetBars", mock.Anything, sym, "5m", 200).Return(gapSeries(), nil)
	f.market.On("GetBars", mock.Anything, sym, "15m", 200).Return(nil, errors.ErrExchangeUnavailable)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusSkipped, d.Status)
	assert.Contains(t, d.Reason, "15m")
	f.model.AssertNotCalled(t, "Predict", mock.Anything)
}

func TestEngine_TrendFailureDegradesToNeutralFeatures(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.market.On("GetBars", mock.Anything, sym, "5m", 200).Return(gapSeries(), nil)
	f.market.On("GetBars", mock.Anything, sym, "15m", 200).Return(flatSeries(), nil)
	f.market.On("GetBars", mock.Anything, sym, "1h", 200).Return(flatSeries(), nil)
	f.market.On("GetBars", mock.Anything, sym, "4h", 200).Return(nil, errors.ErrExchangeUnavailable)

	f.model.On("Predict", classifier.FeatureVector{}).Return(0.5)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, classifier.FeatureVector{}, mock.Anything).Return(classifier.State{}, nil)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.True(t, d.Features.IsZero())
	assert.Equal(t, 0.5, d.Probability)
	f.model.AssertExpectations(t)
}

func TestEngine_SimulatesOnForwardBarsOfTheGapTimeframe(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)

	// Gap [100, 103] formed two bars ago; the current bar spiked through the target.
	fine := []market_data.Bar{
		{High: 106.5, Low: 101.8, Volume: 10},
		{High: 103, Low: 101.5},
		{High: 104, Low: 103},
		{High: 103.5, Low: 100.2},
		{High: 100, Low: 98},
	}
	f.bars(fine, flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, 1.0).Return(classifier.State{SampleCount: 101}, nil).Once()

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	require.NotNil(t, d.Gap)
	assert.Equal(t, 2, d.Gap.Index)
	require.NotNil(t, d.Outcome)
	assert.Equal(t, gap.Win, *d.Outcome)
	f.model.AssertExpectations(t)
}

func TestEngine_OnlineLearningDisabled(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))

	cfg := baseConfig()
	cfg.OnlineLearning = false

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	require.NotNil(t, d.Outcome)
	assert.False(t, d.Learned)
	f.model.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_PlacesOrderWhenLive(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 101}, nil)
	f.exec.On("HasOpenPosition", mock.Anything, sym).Return(false, nil)
	f.exec.On("PlaceBracketOrder", mock.Anything, mock.MatchedBy(func(r exchanges.BracketRequest) bool {
		return r.Symbol == sym &&
			r.Side == exchanges.OrderSideBuy &&
			r.Quantity.String() == "0.001" &&
			r.StopPrice.InexactFloat64() > 99.89 && r.StopPrice.InexactFloat64() < 99.91
	})).Return(&exchanges.BracketResult{Entry: &exchanges.Order{ID: "42"}}, nil)

	cfg := baseConfig()
	cfg.LiveTrading = true

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusOrderPlaced, d.Status)
	assert.Equal(t, "42", d.OrderID)
	f.exec.AssertExpectations(t)
}

func TestEngine_OrderFailureDoesNotBlockLearning(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 101}, nil).Once()
	f.exec.On("HasOpenPosition", mock.Anything, sym).Return(false, nil)
	f.exec.On("PlaceBracketOrder", mock.Anything, mock.Anything).
		Return(nil, &exchanges.APIError{Exchange: "binance", Status: 400, Code: -2019, Message: "Margin is insufficient."})

	cfg := baseConfig()
	cfg.LiveTrading = true

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusOrderFailed, d.Status)
	assert.Contains(t, d.OrderError, "-2019")
	assert.True(t, d.Learned)
	f.model.AssertExpectations(t)
}

func TestEngine_OneTradePerSymbolSkipsOrderButLearns(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(classifier.State{SampleCount: 101}, nil).Once()
	f.exec.On("HasOpenPosition", mock.Anything, sym).Return(true, nil)

	cfg := baseConfig()
	cfg.LiveTrading = true

	d := f.engine(cfg).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusAllowed, d.Status)
	assert.Equal(t, "position already open", d.Reason)
	f.exec.AssertNotCalled(t, "PlaceBracketOrder", mock.Anything, mock.Anything)
	f.model.AssertExpectations(t)
}

func TestEngine_PersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.tradable(101.99, 102.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())
	f.model.On("Predict", mock.Anything).Return(0.9)
	f.model.On("SampleCount").Return(int64(100))
	f.model.On("Update", mock.Anything, mock.Anything, mock.Anything).
		Return(classifier.State{SampleCount: 101}, errors.ErrPersistence)

	d := f.engine(baseConfig()).Evaluate(context.Background(), sym)

	assert.Equal(t, domain.StatusAllowed, d.Status)
	assert.True(t, d.Learned)
	assert.Equal(t, int64(101), d.SampleCount)
}

func TestEngine_PanicInOneSymbolDoesNotAbortOthers(t *testing.T) {
	f := newFixture()
	f.market.On("ResolveSymbol", mock.Anything, "BROKEN").Run(func(mock.Arguments) {
		panic("decoder exploded")
	}).Return(nil, nil)
	f.tradable(109.99, 110.01)
	f.bars(gapSeries(), flatSeries(), flatSeries())

	out := f.engine(baseConfig()).EvaluateAll(context.Background(), []string{"BROKEN", sym})

	require.Len(t, out, 2)
	assert.Equal(t, domain.StatusSkipped, out[0].Status)
	assert.Contains(t, out[0].Reason, "decoder exploded")
	assert.Equal(t, domain.StatusNoSignal, out[1].Status)
	assert.Len(t, f.reporter.decisions, 2)
}
