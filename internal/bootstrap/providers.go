package bootstrap

import (
	"context"
	"os"
	"time"

	chclient "gapsentry/internal/adapters/clickhouse"
	"gapsentry/internal/adapters/config"
	errnoop "gapsentry/internal/adapters/errors/noop"
	"gapsentry/internal/adapters/errors/sentry"
	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/adapters/exchanges/binance"
	"gapsentry/internal/adapters/exchanges/ratelimit"
	"gapsentry/internal/adapters/exchanges/retry"
	"gapsentry/internal/adapters/kafka"
	pgclient "gapsentry/internal/adapters/postgres"
	redisclient "gapsentry/internal/adapters/redis"
	"gapsentry/internal/adapters/telegram"
	"gapsentry/internal/api"
	"gapsentry/internal/api/health"
	domainclf "gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/decision"
	"gapsentry/internal/events"
	"gapsentry/internal/metrics"
	"gapsentry/internal/ml/classifier"
	"gapsentry/internal/ml/features"
	"gapsentry/internal/reporting"
	chrepo "gapsentry/internal/repository/clickhouse"
	filerepo "gapsentry/internal/repository/file"
	pgrepo "gapsentry/internal/repository/postgres"
	redisrepo "gapsentry/internal/repository/redis"
	decisionsvc "gapsentry/internal/services/decision"
	"gapsentry/internal/workers"
	"gapsentry/internal/workers/analysis"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Version is stamped at build time with -ldflags "-X gapsentry/internal/bootstrap.Version=..."
var Version = "dev"

const connectTimeout = 15 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects only the data stores the configuration
// actually uses: Redis or Postgres for classifier state, ClickHouse for the
// decision journal.
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	var err error

	switch c.Config.Classifier.Store {
	case "postgres":
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	case "redis":
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}
}

// ========================================
// Phase 3: Reporting
// ========================================

// MustInitReporting builds the reporter fan-out: log always, then the
// journal, Kafka and Telegram when enabled
func (c *Container) MustInitReporting() {
	cfg := c.Config
	fanout := reporting.Multi{reporting.NewLogReporter()}

	if c.CH != nil {
		journal := chrepo.NewDecisionJournal(c.CH.Conn(), chrepo.JournalConfig{
			BatchSize:     cfg.ClickHouse.BatchSize,
			FlushInterval: cfg.ClickHouse.FlushInterval,
		})
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		err := journal.EnsureSchema(ctx)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to create decision journal schema: %v", err)
		}
		c.Reporting.Journal = journal
		fanout = append(fanout, journal)
		c.Log.Info("✓ Decision journal ready")
	}

	if cfg.Kafka.Enabled {
		c.Reporting.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		publisher := events.NewPublisher(c.Reporting.KafkaProducer, events.Topics{
			Decisions:   cfg.Kafka.DecisionsTopic,
			Persistence: cfg.Kafka.PersistenceTopic,
		}, cfg.App.Name)
		fanout = append(fanout, publisher)
		c.Log.Infow("✓ Kafka publisher ready", "brokers", cfg.Kafka.Brokers)
	}

	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:       cfg.Telegram.BotToken,
			Debug:       cfg.App.Env == "development",
			HTTPTimeout: 10 * time.Second,
		})
		if err != nil {
			c.Log.Fatalf("failed to init telegram bot: %v", err)
		}
		c.Reporting.Notifier = telegram.NewNotifier(bot, telegram.NotifierConfig{
			ChatIDs:           cfg.Telegram.ChatIDs,
			ReportNoSignal:    cfg.Telegram.ReportNoSignal,
			ReportPersistence: cfg.Telegram.ReportPersistence,
		})
		fanout = append(fanout, c.Reporting.Notifier)
		c.Log.Infow("✓ Telegram notifier ready", "chats", len(cfg.Telegram.ChatIDs))
	}

	c.Reporting.Fanout = fanout
}

// ========================================
// Phase 4: Classifier
// ========================================

// MustInitClassifier builds the shared online model and restores its state.
// A failed restore is reported and the process continues from zero weights.
func (c *Container) MustInitClassifier() {
	store, err := c.ClassifierStore()
	if err != nil {
		c.Log.Fatalf("failed to init classifier store: %v", err)
	}
	c.Business.StoreBackend = c.Config.Classifier.Store

	c.Business.Classifier = classifier.NewOnline(classifier.Config{
		LearningRate: c.Config.Classifier.LearningRate,
		Store:        store,
		Observer:     c.persistenceObserver(c.Business.StoreBackend),
	})

	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()
	if err := c.Business.Classifier.Restore(ctx); err != nil {
		c.Log.Errorw("Classifier restore failed, continuing with zero weights", "error", err)
	}

	if c.Config.Metrics.Enabled {
		metrics.RegisterClassifierCollector(metrics.NewClassifierCollector(c.Business.Classifier.Snapshot))
	}
}

// ClassifierStore builds the state store selected by CLASSIFIER_STORE
func (c *Container) ClassifierStore() (domainclf.Store, error) {
	cfg := c.Config.Classifier
	switch cfg.Store {
	case "redis":
		return redisrepo.NewClassifierStateRepository(c.Redis, cfg.ModelName), nil
	case "postgres":
		repo := pgrepo.NewClassifierStateRepository(c.PG.DB(), cfg.ModelName)
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case "file":
		return filerepo.NewClassifierStateRepository(cfg.StoreLocation), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown classifier store %q", cfg.Store)
	}
}

func (c *Container) persistenceObserver(backend string) classifier.PersistenceObserver {
	return func(op string, st domainclf.State, err error) {
		metrics.RecordPersistence(op, backend, err)
		c.Reporting.Fanout.ReportPersistence(c.Context, decision.PersistenceEvent{
			Operation:   op,
			Backend:     backend,
			SampleCount: st.SampleCount,
			Err:         err,
			At:          time.Now().UTC(),
		})
	}
}

// ========================================
// Phase 5: Exchange
// ========================================

// MustInitExchange builds the Binance adapter behind rate limits, retries and
// a circuit breaker
func (c *Container) MustInitExchange() {
	cfg := c.Config.Exchange
	ex, err := provideExchange(cfg, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to init exchange: %v", err)
	}
	c.Business.Exchange = ex
	c.Log.Infow("✓ Exchange ready",
		"exchange", cfg.Name,
		"market", cfg.Market,
		"testnet", cfg.Testnet,
		"breaker", cfg.BreakerEnabled,
	)
}

func provideExchange(cfg config.ExchangeConfig, log *logger.Logger) (exchanges.Exchange, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	client, err := binance.NewClient(binance.Config{
		APIKey:    cfg.APIKey,
		SecretKey: cfg.Secret,
		Market:    exchanges.MarketType(cfg.Market),
		Testnet:   cfg.Testnet,
		Limiters:  ratelimit.NewBinanceLimiters(cfg.RequestsPerMinute, cfg.OrdersPerMinute),
		Retry: retry.New(retryCfg, func(attempt int, err error) {
			metrics.RecordExchangeRetry(cfg.Name)
			log.Debugw("Retrying exchange call", "exchange", cfg.Name, "attempt", attempt, "error", err)
		}),
	})
	if err != nil {
		return nil, err
	}

	if !cfg.BreakerEnabled {
		return client, nil
	}
	return exchanges.NewBreaker(client, exchanges.DefaultBreakerSettings()), nil
}

// ========================================
// Phase 6: Decision Engine
// ========================================

// MustInitEngine wires features, classifier, exchange and reporters together
func (c *Container) MustInitEngine() {
	s := c.Config.Strategy
	clf := c.Config.Classifier

	c.Business.Features = features.NewBuilder(features.Config{
		MAWindow:         s.MAWindow,
		SessionStartHour: s.SessionStartHour,
		SessionEndHour:   s.SessionEndHour,
	})

	var exec exchanges.Execution
	if s.LiveTrading {
		exec = c.Business.Exchange
	}

	c.Business.Engine = decisionsvc.NewEngine(decisionsvc.Config{
		Timeframes:        decisionsvc.DefaultTimeframes(s.FineTimeframe, s.MediumTimeframe, s.CoarseTimeframe),
		TrendInterval:     s.TrendTimeframe,
		BarsPerFetch:      s.BarsPerFetch,
		TradeSize:         s.TradeSize,
		RiskReward:        s.RiskReward,
		StopBufferTicks:   s.StopBufferTicks,
		MaxSpreadTicks:    s.MaxSpreadTicks,
		OneTradePerSymbol: s.OneTradePerSymbol,
		LiveTrading:       s.LiveTrading,
		ClassifierEnabled: clf.Enabled,
		OnlineLearning:    clf.OnlineLearning,
		Threshold:         clf.Threshold,
		WarmupSamples:     clf.WarmupSamples,
		LookaheadBars:     s.LookaheadBars,
	}, c.Business.Exchange, exec, c.Business.Classifier, c.Business.Features, c.Reporting.Fanout)
}

// ========================================
// Phase 7: Background Processing
// ========================================

// MustInitBackground registers the evaluation worker
func (c *Container) MustInitBackground() {
	c.Scheduler = workers.NewScheduler()
	c.Scheduler.RegisterWorker(analysis.NewGapEvaluator(c.Business.Engine, analysis.GapEvaluatorConfig{
		Symbols:      c.Config.Strategy.Symbols,
		Cadence:      c.Config.Strategy.Cadence,
		PollInterval: c.Config.Workers.PollInterval,
		Timeout:      c.Config.Workers.EvaluationTimeout,
		Enabled:      true,
	}))
}

// ========================================
// Phase 8: Application Layer
// ========================================

// MustInitApplication builds the metrics and health endpoint
func (c *Container) MustInitApplication() {
	if !c.Config.Metrics.Enabled {
		c.Log.Info("Metrics endpoint disabled")
		return
	}

	checks := map[string]health.Check{}
	if c.PG != nil {
		checks["postgres"] = c.PG.Health
	}
	if c.CH != nil {
		checks["clickhouse"] = c.CH.Health
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Health
	}

	handler := health.New(c.Config.App.Name, Version, checks, c.Scheduler)
	c.HTTPServer = api.NewServer(c.Config.Metrics.Addr, handler)
}

// provideErrorTracker initializes error tracking (Sentry or no-op)
func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.Provider == "noop" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	host, _ := os.Hostname()
	tracker, err := sentry.New(sentry.Config{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Name + "@" + Version,
		ServerName:  host,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}
