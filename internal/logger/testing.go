package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewTestLogger creates a CentralLogger that writes JSON lines to w.
// This is useful for tests that need to intercept logger output.
func NewTestLogger(w io.Writer, level LogLevel) *CentralLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	atomic := zap.NewAtomicLevelAt(parseLogLevel(string(level)))
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), atomic)
	return newCentralLoggerWithCore(core, atomic)
}

// NewDiscardLogger returns a module logger that drops everything
func NewDiscardLogger() Logger {
	return newZapLogger(zap.NewNop(), "discard", nil)
}
