package logger

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	_ "time/tzdata"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance
var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the global CentralLogger instance.
// This should be called once during application startup after loading configuration.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the global CentralLogger instance.
// If no logger has been set via SetGlobal, it returns a fallback console logger.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger != nil {
		return globalLogger
	}

	cl, err := NewCentralLogger(&LoggingConfig{})
	if err != nil {
		// Console-only config never fails; keep a no-op logger just in case
		cl = newCentralLoggerWithCore(zapcore.NewNopCore(), zap.NewAtomicLevel())
	}
	globalLogger = cl
	return globalLogger
}

// loggerContextKey is a typed key for context values to avoid string collisions.
type loggerContextKey struct{ name string }

// RunIDKey is the context key for the run identifier. Use WithRunID() to set values.
var RunIDKey = loggerContextKey{"run_id"}

// WithRunID returns a new context carrying the run identifier
func WithRunID(ctx context.Context, runID uint64) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// CentralLogger owns the zap core and the shared atomic level
type CentralLogger struct {
	mu      sync.Mutex // guards cores and closers
	base    *zap.Logger
	sinks   *atomic.Pointer[zapcore.Core]
	level   zap.AtomicLevel
	cores   []zapcore.Core
	cfg     LoggingConfig
	tz      *time.Location
	closers []func() error
}

// NewCentralLogger creates a centralized logger writing to stderr and, optionally, a file
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(parseLogLevel(cfg.Level))
	encoder := newEncoder(cfg, tz)

	cl := newCentralLoggerWithCore(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level), level)
	cl.cfg = *cfg
	cl.tz = tz

	if cfg.File != "" {
		if err := cl.AddFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

// AddFile tees JSON output into the file at path. Every logger derived from
// cl writes to the file from then on, including ones obtained earlier.
func (cl *CentralLogger) AddFile(path string) error {
	sink, closeSink, err := zap.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	fileCfg := cl.cfg
	fileCfg.JSON = true
	cl.closers = append(cl.closers, func() error { closeSink(); return nil })
	cl.cores = append(cl.cores, zapcore.NewCore(newEncoder(&fileCfg, cl.tz), sink, cl.level))
	tee := zapcore.NewTee(cl.cores...)
	cl.sinks.Store(&tee)
	return nil
}

// newCentralLoggerWithCore builds a CentralLogger around an existing core
func newCentralLoggerWithCore(core zapcore.Core, level zap.AtomicLevel) *CentralLogger {
	sinks := &atomic.Pointer[zapcore.Core]{}
	sinks.Store(&core)
	return &CentralLogger{
		base:  zap.New(&swapCore{sinks: sinks}),
		sinks: sinks,
		level: level,
		cores: []zapcore.Core{core},
		tz:    time.Local,
	}
}

// swapCore forwards to the current sink set, so sinks added after a logger
// was derived still receive its entries
type swapCore struct {
	sinks  *atomic.Pointer[zapcore.Core]
	fields []zapcore.Field
}

func (c *swapCore) current() zapcore.Core {
	core := *c.sinks.Load()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c *swapCore) Enabled(level zapcore.Level) bool {
	return (*c.sinks.Load()).Enabled(level)
}

func (c *swapCore) With(fields []zapcore.Field) zapcore.Core {
	return &swapCore{sinks: c.sinks, fields: append(slices.Clone(c.fields), fields...)}
}

func (c *swapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.current().Check(ent, ce)
}

func (c *swapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.current().Write(ent, fields)
}

func (c *swapCore) Sync() error {
	return (*c.sinks.Load()).Sync()
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	default:
		tz, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
		}
		return tz, nil
	}
}

func newEncoder(cfg *LoggingConfig, tz *time.Location) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(tz).Format(time.RFC3339Nano))
	}
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	if cfg.JSON {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}

	if cfg.NoColor {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// SetLevel changes the level of every logger derived from this CentralLogger
func (cl *CentralLogger) SetLevel(level LogLevel) {
	cl.level.SetLevel(parseLogLevel(string(level)))
}

// Level returns the current level
func (cl *CentralLogger) Level() LogLevel {
	return fromZapLevel(cl.level.Level())
}

// Module returns a logger scoped to the named module
func (cl *CentralLogger) Module(name string) Logger {
	return newZapLogger(cl.base, name, nil)
}

// Flush syncs the underlying core
func (cl *CentralLogger) Flush() error {
	// stderr sync fails with EINVAL on most terminals
	_ = cl.base.Sync()
	return nil
}

// Close flushes and releases file sinks
func (cl *CentralLogger) Close() error {
	_ = cl.Flush()
	cl.mu.Lock()
	defer cl.mu.Unlock()
	var firstErr error
	for _, c := range cl.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	cl.closers = nil
	return firstErr
}

// zapLogger adapts *zap.Logger to the Logger interface
type zapLogger struct {
	root   *zap.Logger
	base   *zap.Logger
	module string
	fields []zap.Field
}

func newZapLogger(root *zap.Logger, module string, fields []zap.Field) *zapLogger {
	base := root.With(zap.String("module", module))
	if len(fields) > 0 {
		base = base.With(fields...)
	}
	return &zapLogger{root: root, base: base, module: module, fields: fields}
}

func (l *zapLogger) Module(name string) Logger {
	full := name
	if l.module != "" {
		full = l.module + "." + name
	}
	return newZapLogger(l.root, full, l.fields)
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.base.Debug(msg, toZap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.base.Info(msg, toZap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.base.Warn(msg, toZap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.base.Error(msg, toZap(fields)...) }

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	if ce := l.base.Check(parseLogLevel(string(level)), msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (l *zapLogger) With(fields ...Field) Logger {
	merged := make([]zap.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, toZap(fields)...)
	return newZapLogger(l.root, l.module, merged)
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if runID, ok := ctx.Value(RunIDKey).(uint64); ok {
		return l.With(Uint64("run_id", runID))
	}
	return l
}

func (l *zapLogger) Flush() error {
	_ = l.base.Sync()
	return nil
}

func toZap(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
