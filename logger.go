package riptide

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is the minimal structured logger used by the client and its
// plugins. keysAndValues alternate between string keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects what the client logs at debug level.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRouting   bool
	LogRetries   bool
	LogCircuit   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled configuration with every category
// selected and UUID request ids.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRouting:   true,
		LogRetries:   true,
		LogCircuit:   true,
		RequestIDGen: uuid.NewString,
	}
}

// SimpleLogger writes text records to stderr through log/slog.
type SimpleLogger struct {
	logger *slog.Logger
}

// NewSimpleLogger returns a SimpleLogger at debug level.
func NewSimpleLogger() *SimpleLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &SimpleLogger{logger: slog.New(handler).With("component", "riptide")}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

// LogrusLogger adapts a logrus logger or entry.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger wraps logger; nil uses the logrus standard logger.
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			f[key] = keysAndValues[i+1]
		} else {
			f[key] = "(missing)"
		}
	}
	return f
}
