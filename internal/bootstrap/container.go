package bootstrap

import (
	"context"
	"sync"

	chclient "gapsentry/internal/adapters/clickhouse"
	"gapsentry/internal/adapters/config"
	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/adapters/kafka"
	pgclient "gapsentry/internal/adapters/postgres"
	redisclient "gapsentry/internal/adapters/redis"
	"gapsentry/internal/adapters/telegram"
	"gapsentry/internal/api"
	"gapsentry/internal/ml/classifier"
	"gapsentry/internal/ml/features"
	"gapsentry/internal/reporting"
	chrepo "gapsentry/internal/repository/clickhouse"
	decisionsvc "gapsentry/internal/services/decision"
	"gapsentry/internal/workers"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (nil when not configured)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	// Reporting fan-out
	Reporting *Reporting

	// Business logic
	Business *Business

	// Application Layer
	HTTPServer *api.Server

	// Background Processing
	Scheduler *workers.Scheduler

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Reporting groups the decision and persistence sinks
type Reporting struct {
	Fanout        reporting.Multi
	Journal       *chrepo.DecisionJournal
	KafkaProducer *kafka.Producer
	Notifier      *telegram.Notifier
}

// Business groups the components that evaluate gaps
type Business struct {
	StoreBackend string
	Classifier   *classifier.Online
	Exchange     exchanges.Exchange
	Features     *features.Builder
	Engine       *decisionsvc.Engine
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Reporting: &Reporting{},
		Business:  &Business{},
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitReporting()
	c.MustInitClassifier()
	c.MustInitExchange()
	c.MustInitEngine()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Reporting.Journal != nil {
		c.Reporting.Journal.Start(c.Context)
	}

	if n := c.Reporting.Notifier; n != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			n.Run(c.Context)
		}()
	}

	if c.HTTPServer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.HTTPServer.Start(); err != nil {
				c.Log.Errorf("HTTP server failed: %v", err)
				c.Cancel() // Trigger shutdown on fatal HTTP error
			}
		}()
	}

	if err := c.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Infow("✓ All systems operational",
		"symbols", c.Config.Strategy.Symbols,
		"cadence", c.Config.Strategy.Cadence,
		"live_trading", c.Config.Strategy.LiveTrading,
	)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Lifecycle.Shutdown(c.Config.Workers.ShutdownTimeout, ShutdownTargets{
		WG:            c.WG,
		Cancel:        c.Cancel,
		HTTPServer:    c.HTTPServer,
		Scheduler:     c.Scheduler,
		Journal:       c.Reporting.Journal,
		KafkaProducer: c.Reporting.KafkaProducer,
		PG:            c.PG,
		CH:            c.CH,
		Redis:         c.Redis,
		ErrorTracker:  c.ErrorTracker,
	}, c.Log)
}
