package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Syslog-style verbosity bounds accepted on the command line
const (
	MinVerbosity = 0 // LOG_EMERG
	MaxVerbosity = 7 // LOG_DEBUG
)

// LevelFromVerbosity maps a syslog priority mask (0-7) onto a log level.
// Priorities 0-3 (emerg, alert, crit, err) all map to error so that error
// messages stay visible whatever the requested verbosity.
func LevelFromVerbosity(verbosity int) LogLevel {
	switch {
	case verbosity <= 3:
		return LogLevelError
	case verbosity == 4:
		return LogLevelWarn
	case verbosity <= 6:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// ClampVerbosity forces a verbosity into the accepted 0-7 range
func ClampVerbosity(verbosity int) (int, bool) {
	switch {
	case verbosity < MinVerbosity:
		return MinVerbosity, true
	case verbosity > MaxVerbosity:
		return MaxVerbosity, true
	default:
		return verbosity, false
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(level zapcore.Level) LogLevel {
	switch {
	case level <= zapcore.DebugLevel:
		return LogLevelDebug
	case level == zapcore.InfoLevel:
		return LogLevelInfo
	case level == zapcore.WarnLevel:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}
