// Package log provides structured logging for go-flightdeck.
// It wraps logrus with sensible defaults for production use.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	mu     sync.Mutex
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error". Unknown levels fall back to info.
// Calling Init again only adjusts the level.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	if logger != nil {
		logger.SetLevel(lvl)
		return
	}

	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(lvl)

	// Use JSON in production, concise text in development
	if os.Getenv("GO_ENV") == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&SimpleFormatter{})
	}

	logger = l
}

// L returns the global logger instance.
func L() *logrus.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

// Debug logs at debug level. args are alternating key/value pairs.
func Debug(msg string, args ...any) {
	L().WithFields(fields(args)).Debug(msg)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().WithFields(fields(args)).Info(msg)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().WithFields(fields(args)).Warn(msg)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().WithFields(fields(args)).Error(msg)
}

// With returns a logger entry carrying the given key/value pairs.
func With(args ...any) *logrus.Entry {
	return L().WithFields(fields(args))
}

// Component is shorthand for With("component", name).
func Component(name string) *logrus.Entry {
	return With("component", name)
}

// fields turns alternating key/value pairs into logrus fields.
// A trailing key without a value is recorded under "!BADKEY".
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = args[i+1]
	}
	return f
}
