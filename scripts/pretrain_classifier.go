package main

// Offline warm-start for the gap classifier. Replays a historical bar window
// per symbol and timeframe through detection, features, simulation and the
// online update, then persists the resulting state to the configured store.
//
// Usage:
//   go run scripts/pretrain_classifier.go --symbols BTCUSDT,ETHUSDT --bars 1000
//   go run scripts/pretrain_classifier.go --source clickhouse --start 2024-01-01 --end 2024-06-30
//   go run scripts/pretrain_classifier.go --store-bars --dry-run   # backfill ClickHouse only

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gapsentry/internal/bootstrap"
	domainclf "gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/market_data"
	"gapsentry/internal/ml/classifier"
	"gapsentry/internal/ml/features"
	chrepo "gapsentry/internal/repository/clickhouse"
	decisionsvc "gapsentry/internal/services/decision"
	"gapsentry/pkg/errors"
)

var (
	symbols     []string
	source      string
	barCount    int
	startDate   string
	endDate     string
	spreadTicks float64
	stride      int
	storeBars   bool
	resume      bool
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "pretrain_classifier",
	Short: "Warm-start the gap classifier from historical bars",
	Long: `Replays historical bars through the live decision path (detect, featurize,
simulate, learn) and saves the trained state to CLASSIFIER_STORE.

Bars come from the exchange (most recent --bars per timeframe) or from the
ClickHouse ohlcv table (--start/--end). With --store-bars, bars fetched from the
exchange are also written to ClickHouse.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to replay (default: STRATEGY_SYMBOLS)")
	rootCmd.Flags().StringVar(&source, "source", "binance", "bar source: binance or clickhouse")
	rootCmd.Flags().IntVar(&barCount, "bars", 1000, "bars per timeframe from the exchange")
	rootCmd.Flags().StringVar(&startDate, "start", "", "ClickHouse window start (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&endDate, "end", "", "ClickHouse window end (YYYY-MM-DD)")
	rootCmd.Flags().Float64Var(&spreadTicks, "spread-ticks", 2, "spread assumed for every historical sample")
	rootCmd.Flags().IntVar(&stride, "stride", 1, "bars advanced per replay step")
	rootCmd.Flags().BoolVar(&storeBars, "store-bars", false, "write exchange bars to ClickHouse")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "continue from the persisted state instead of zero weights")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "train but do not save the state")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if source != "binance" && source != "clickhouse" {
		return errors.Wrapf(errors.ErrInvalidInput, "unknown source %q", source)
	}
	window, err := parseWindow(startDate, endDate)
	if err != nil {
		return err
	}

	c := bootstrap.NewContainer()
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitExchange()
	defer c.Shutdown()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := c.Config
	if len(symbols) == 0 {
		symbols = cfg.Strategy.Symbols
	}

	var bars *chrepo.MarketDataRepository
	if c.CH != nil {
		bars = chrepo.NewMarketDataRepository(c.CH.Conn())
		if err := bars.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if (source == "clickhouse" || storeBars) && bars == nil {
		return errors.Wrap(errors.ErrInvalidInput, "ClickHouse is required; set CLICKHOUSE_ENABLED=true")
	}

	store, err := c.ClassifierStore()
	if err != nil {
		return err
	}
	deferred := &deferredStore{next: store, resume: resume}
	model := classifier.NewOnline(classifier.Config{
		LearningRate: cfg.Classifier.LearningRate,
		Store:        deferred,
	})
	if err := model.Restore(ctx); err != nil {
		return err
	}

	builder := features.NewBuilder(features.Config{
		MAWindow:         cfg.Strategy.MAWindow,
		SessionStartHour: cfg.Strategy.SessionStartHour,
		SessionEndHour:   cfg.Strategy.SessionEndHour,
	})
	loader := barLoader{exchange: c.Business.Exchange, repo: bars, window: window}
	timeframes := decisionsvc.DefaultTimeframes(
		cfg.Strategy.FineTimeframe, cfg.Strategy.MediumTimeframe, cfg.Strategy.CoarseTimeframe,
	)

	var total decisionsvc.ReplayStats
	for _, symbol := range symbols {
		info, err := c.Business.Exchange.ResolveSymbol(ctx, symbol)
		if err != nil {
			c.Log.Warnw("Skipping unresolvable symbol", "symbol", symbol, "error", err)
			continue
		}

		trend, err := loader.load(ctx, symbol, cfg.Strategy.TrendTimeframe)
		if err != nil {
			c.Log.Warnw("Trend series unavailable, replaying with neutral trend", "symbol", symbol, "error", err)
		}

		for _, tf := range timeframes {
			series, err := loader.load(ctx, symbol, tf.Interval)
			if err != nil {
				return errors.Wrapf(err, "load %s %s", symbol, tf.Interval)
			}

			if storeBars && source == "binance" {
				if err := bars.InsertBars(ctx, series); err != nil {
					return err
				}
				c.Log.Infow("Bars stored", "symbol", symbol, "timeframe", tf.Interval, "count", len(series))
			}

			stats, err := decisionsvc.Replay(ctx, decisionsvc.ReplayConfig{
				Symbol:          symbol,
				Timeframe:       tf,
				TickSize:        info.TickSize,
				SpreadTicks:     spreadTicks,
				StopBufferTicks: cfg.Strategy.StopBufferTicks,
				RiskReward:      cfg.Strategy.RiskReward,
				LookaheadBars:   cfg.Strategy.LookaheadBars,
				Stride:          stride,
			}, series, trend, builder, model)
			if err != nil {
				return err
			}

			c.Log.Infow("Replay finished",
				"symbol", symbol,
				"timeframe", tf.Interval,
				"bars", humanize.Comma(int64(len(series))),
				"gaps", stats.Gaps,
				"wins", stats.Wins,
				"losses", stats.Losses,
				"degenerate", stats.Degenerate,
				"accuracy", fmt.Sprintf("%.1f%%", stats.Accuracy()*100),
			)
			total.Windows += stats.Windows
			total.Gaps += stats.Gaps
			total.Wins += stats.Wins
			total.Losses += stats.Losses
			total.Correct += stats.Correct
		}
	}

	st := model.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "samples=%s gaps=%s win_rate=%.1f%% pre_update_accuracy=%.1f%% bias=%.4f weights=%v\n",
		humanize.Comma(st.SampleCount),
		humanize.Comma(int64(total.Gaps)),
		rate(total.Wins, total.Gaps),
		total.Accuracy()*100,
		st.Bias,
		st.Weights,
	)

	if dryRun {
		c.Log.Info("Dry run, state not saved")
		return nil
	}
	if err := deferred.flush(ctx); err != nil {
		return err
	}
	c.Log.Infow("Classifier state saved", "backend", cfg.Classifier.Store, "samples", st.SampleCount)
	return nil
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

func parseWindow(start, end string) (market_data.BarQuery, error) {
	var q market_data.BarQuery
	var err error
	if start != "" {
		if q.StartTime, err = time.Parse(time.DateOnly, start); err != nil {
			return q, errors.Wrapf(errors.ErrInvalidInput, "start date: %v", err)
		}
	}
	if end != "" {
		if q.EndTime, err = time.Parse(time.DateOnly, end); err != nil {
			return q, errors.Wrapf(errors.ErrInvalidInput, "end date: %v", err)
		}
		q.EndTime = q.EndTime.Add(24*time.Hour - time.Nanosecond)
	}
	return q, nil
}

// barLoader reads most-recent-first series from the exchange or ClickHouse
type barLoader struct {
	exchange interface {
		GetBars(ctx context.Context, symbol, interval string, limit int) ([]market_data.Bar, error)
	}
	repo   *chrepo.MarketDataRepository
	window market_data.BarQuery
}

func (l barLoader) load(ctx context.Context, symbol, interval string) ([]market_data.Bar, error) {
	if source == "clickhouse" {
		q := l.window
		q.Symbol = symbol
		q.Timeframe = interval
		return l.repo.GetBars(ctx, q)
	}
	return l.exchange.GetBars(ctx, symbol, interval, barCount)
}

// deferredStore keeps every save in memory so a replay of thousands of
// samples writes the backend once
type deferredStore struct {
	next   domainclf.Store
	resume bool

	mu   sync.Mutex
	last *domainclf.State
}

func (s *deferredStore) Load(ctx context.Context) (*domainclf.State, error) {
	if !s.resume {
		return nil, errors.ErrNotFound
	}
	return s.next.Load(ctx)
}

func (s *deferredStore) Save(_ context.Context, state domainclf.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &state
	return nil
}

func (s *deferredStore) flush(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return nil
	}
	return s.next.Save(ctx, *last)
}
