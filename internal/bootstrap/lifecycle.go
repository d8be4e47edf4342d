package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "gapsentry/internal/adapters/clickhouse"
	"gapsentry/internal/adapters/kafka"
	pgclient "gapsentry/internal/adapters/postgres"
	redisclient "gapsentry/internal/adapters/redis"
	"gapsentry/internal/api"
	chrepo "gapsentry/internal/repository/clickhouse"
	"gapsentry/internal/workers"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	defaultTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{defaultTimeout: 30 * time.Second}
}

// ShutdownTargets lists everything Shutdown closes. Nil members are skipped.
type ShutdownTargets struct {
	WG            *sync.WaitGroup
	Cancel        context.CancelFunc
	HTTPServer    *api.Server
	Scheduler     *workers.Scheduler
	Journal       *chrepo.DecisionJournal
	KafkaProducer *kafka.Producer
	PG            *pgclient.Client
	CH            *chclient.Client
	Redis         *redisclient.Client
	ErrorTracker  errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in order:
// 1. No new HTTP requests
// 2. The in-flight decision cycle finishes, so its reports and saves land
// 3. Reporters drain
// 4. Producer closes after the last report
// 5. Logs and errors flushed
// 6. Database connections last (the classifier store may still be saving)
func (l *Lifecycle) Shutdown(timeout time.Duration, t ShutdownTargets, log *logger.Logger) {
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	log.Info("[2/8] Stopping background workers...")
	if t.Scheduler != nil {
		if err := t.Scheduler.Stop(shutdownCtx); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	// Reporters run on the application context; cancelling it drains them
	log.Info("[3/8] Draining reporters...")
	if t.Cancel != nil {
		t.Cancel()
	}
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 10*time.Second, log)
	}

	log.Info("[4/8] Flushing decision journal...")
	if t.Journal != nil {
		if err := t.Journal.Stop(shutdownCtx); err != nil {
			log.Errorw("Decision journal flush failed", "error", err)
		} else {
			log.Info("✓ Decision journal flushed")
		}
	}

	log.Info("[5/8] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[6/8] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)

	log.Info("[7/8] Syncing logs...")
	if err := logger.Sync(); err != nil {
		// stdout/stderr sync returns EINVAL on most terminals
		log.Debugw("Log sync completed with warnings", "error", err)
	}

	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pg *pgclient.Client,
	ch *chclient.Client,
	rdb *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pg != nil {
		if err := pg.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if ch != nil {
		if err := ch.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
