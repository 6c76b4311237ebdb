// Package logger provides a structured, module-aware logging system built on go.uber.org/zap.
//
// # Quick Start
//
//	central, err := logger.NewCentralLogger(&logger.LoggingConfig{Level: "info"})
//	if err != nil {
//	    return err
//	}
//	defer central.Flush()
//
//	log := central.Module("controller")
//	log.Info("pipeline started",
//	    logger.Int("run", 7),
//	    logger.Float64("gain", 30))
//
// # Module Scoping
//
// Loggers are scoped hierarchically; a child of "sdr" named "file" logs with
// module="sdr.file".
//
// # Levels
//
// The level can be changed at runtime with SetLevel. The recorder CLI maps the
// syslog-style verbosity (0-7) onto these levels with LevelFromVerbosity; the
// error level is always enabled.
//
// # Testing
//
// NewTestLogger returns a logger writing to an in-memory buffer.
package logger

import (
	"context"
	"time"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field for structured logging.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field for structured logging.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates a 64-bit integer field for structured logging.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates an unsigned 64-bit integer field for structured logging.
//
// Use this for sample counts, sequence numbers and frequencies in Hz.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a 64-bit float field for structured logging.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field for structured logging.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field for structured logging.
//
// The field key is always "error". If err is nil, the value will be nil.
//
//	if err := recorder.Record(settings); err != nil {
//	    log.Error("failed to write run metadata",
//	        logger.Error(err),
//	        logger.String("path", path))
//	    return err
//	}
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field for structured logging.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field for structured logging.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value for structured logging.
// Prefer the type-specific constructors for simple types.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
