package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"gapsentry/pkg/errors"
)

// Compile-time check
var _ errors.Tracker = (*Tracker)(nil)

// Tracker implements error tracking via Sentry
type Tracker struct {
	hub *sentry.Hub
}

// Config holds Sentry client options
type Config struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// New initializes the Sentry client
func New(cfg Config) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init sentry")
	}

	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends an error with tags on a cloned hub so scopes never leak
// between goroutines
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelError)
	})
	hub.CaptureException(err)
	return nil
}

// CaptureMessage sends a message at level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(convertLevel(level))
	})
	hub.CaptureMessage(message)
	return nil
}

// Flush waits for pending events until ctx's deadline (2s without one)
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelInfo:
		return sentry.LevelInfo
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
