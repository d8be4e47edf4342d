package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gapsentry/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Logger wraps zap.SugaredLogger and forwards errors to an optional tracker
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
	tags    map[string]string
}

// Init builds the global logger. Production uses the JSON encoder, everything
// else gets the colored console encoder.
func Init(level string, env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	globalMu.Unlock()
	return nil
}

// SetErrorTracker attaches the tracker used by Error/Errorf
func SetErrorTracker(tracker errors.Tracker) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.tracker = tracker
	}
}

// Get returns the global logger, falling back to a development logger
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		zl, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	}
	return globalLogger
}

// With creates a child logger. String-valued "component", "worker" and
// "symbol" pairs are also kept as tracker tags.
func (l *Logger) With(args ...interface{}) *Logger {
	tags := make(map[string]string, len(l.tags)+1)
	for k, v := range l.tags {
		tags[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		switch key {
		case "component", "worker", "symbol":
			if v, ok := args[i+1].(string); ok {
				tags[key] = v
			}
		}
	}

	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
		tags:          tags,
	}
}

// Error logs and reports to the tracker
func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.capture(errors.Wrapf(errors.ErrInternal, "%v", args))
}

// Errorf logs a formatted error and reports it to the tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.capture(fmt.Errorf(template, args...))
}

// Errorw logs a message with key/value pairs and reports it to the tracker
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	l.capture(errors.Wrapf(errors.ErrInternal, "%s %v", msg, keysAndValues))
}

// ErrorWithContext logs err and sends it to the tracker with extra tags
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.SugaredLogger.Error(err)
	if l.tracker == nil {
		return
	}
	merged := make(map[string]string, len(l.tags)+len(tags))
	for k, v := range l.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	_ = l.tracker.CaptureError(ctx, err, merged)
}

func (l *Logger) capture(err error) {
	if l.tracker == nil {
		return
	}
	_ = l.tracker.CaptureError(context.Background(), err, l.tags)
}

// Convenience functions that use the global logger
func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { Get().Fatalf(template, args...) }

// Sync flushes any buffered log entries
func Sync() error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
