// Package logging provides structured logging for the sync engine.
package logging

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

// Init installs the global logger with the given output and minimum level.
// Level is one of "debug", "info", "warn", "error"; unknown values fall back
// to info. Later calls replace the installed logger.
func Init(out io.Writer, level string) {
	logger.Store(newLogger(out, parseLevel(level)))
}

// Get returns the global logger, installing a default one on first use.
// Safe for concurrent use without a prior Init.
func Get() *logrus.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	l := newLogger(os.Stdout, logrus.InfoLevel)
	if logger.CompareAndSwap(nil, l) {
		return l
	}
	return logger.Load()
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	return l
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func merged(context []map[string]interface{}) logrus.Fields {
	if len(context) == 0 {
		return nil
	}
	fields := make(logrus.Fields)
	for _, c := range context {
		for k, v := range c {
			fields[k] = v
		}
	}
	return fields
}

// Debug logs a debug message with optional structured context.
func Debug(message string, context ...map[string]interface{}) {
	Get().WithFields(merged(context)).Debug(message)
}

// Info logs an info message with optional structured context.
func Info(message string, context ...map[string]interface{}) {
	Get().WithFields(merged(context)).Info(message)
}

// Warn logs a warning message with optional structured context.
func Warn(message string, context ...map[string]interface{}) {
	Get().WithFields(merged(context)).Warn(message)
}

// Error logs an error message with optional structured context.
func Error(message string, err error, context ...map[string]interface{}) {
	entry := Get().WithFields(merged(context))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
