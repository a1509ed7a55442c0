package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	debugEnabled = os.Getenv("DEBUG") == "true"

	mu   sync.RWMutex
	base = newDefault()
)

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	if debugEnabled {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// SetLogger replaces the process-wide logger (tests pass zap.NewNop or an observer)
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = logger.Sugar()
}

// Sync flushes buffered log entries
func Sync() error {
	return current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	current().With("subsystem", subsystem).Infof(format, args...)
}

// Debug logs a debug message (only shown if DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	current().With("subsystem", subsystem).Debugf(format, args...)
}

// Warn logs a recoverable problem
func Warn(subsystem, format string, args ...any) {
	current().With("subsystem", subsystem).Warnf(format, args...)
}

// Error logs a failure that was handled but should be looked at
func Error(subsystem, format string, args ...any) {
	current().With("subsystem", subsystem).Errorf(format, args...)
}

// Truncate truncates a string to maxLen and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
