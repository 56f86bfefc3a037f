// Package logging holds the process wide zap logger.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger = zap.NewNop()
	globalMu     sync.RWMutex
)

// ParseLevel maps a config level string to a zap level; unknown values mean info
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New creates a JSON logger writing to stderr at the given level
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.Sampling = nil

	return cfg.Build()
}

// Global returns the global logger. It discards everything until SetGlobal is called.
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobal sets the global logger
func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Named returns a child of the global logger for a component
func Named(component string) *zap.Logger {
	return Global().Named(component)
}

// With returns a child of the global logger carrying fields
func With(fields ...zap.Field) *zap.Logger {
	return Global().With(fields...)
}

// Info logs at info level using the global logger
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Warn logs at warn level using the global logger
func Warn(msg string, fields ...zap.Field) {
	Global().Warn(msg, fields...)
}

// Error logs at error level using the global logger
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}

// Debug logs at debug level using the global logger
func Debug(msg string, fields ...zap.Field) {
	Global().Debug(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Global().Sync()
}
