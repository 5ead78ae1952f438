// Package logger implements contracts.Logger on top of zap.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/leandrodaf/midisport/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLogger is the contracts.Logger used by the driver and its tools.
type ZapLogger struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	level   zap.AtomicLevel
	encoder func(zapcore.EncoderConfig) zapcore.Encoder
	closer  io.Closer
}

var levels = map[contracts.LogLevel]zapcore.Level{
	contracts.DebugLevel: zapcore.DebugLevel,
	contracts.InfoLevel:  zapcore.InfoLevel,
	contracts.WarnLevel:  zapcore.WarnLevel,
	contracts.ErrorLevel: zapcore.ErrorLevel,
	contracts.FatalLevel: zapcore.FatalLevel,
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	return cfg
}

// NewZapLogger returns a JSON logger writing to stderr at info level.
func NewZapLogger() contracts.Logger {
	return newLogger(zapcore.NewJSONEncoder, zapcore.Lock(os.Stderr))
}

// NewStandardLogger returns a human readable console logger writing to stderr.
func NewStandardLogger() contracts.Logger {
	return newLogger(zapcore.NewConsoleEncoder, zapcore.Lock(os.Stderr))
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() contracts.Logger {
	return &ZapLogger{
		logger:  zap.NewNop(),
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		encoder: zapcore.NewJSONEncoder,
	}
}

// NewWithCore wraps an existing zap core. Level filtering still applies on
// top of the core, starting at debug.
func NewWithCore(core zapcore.Core) contracts.Logger {
	return &ZapLogger{
		logger:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		level:   zap.NewAtomicLevelAt(zapcore.DebugLevel),
		encoder: zapcore.NewJSONEncoder,
	}
}

func newLogger(enc func(zapcore.EncoderConfig) zapcore.Encoder, w zapcore.WriteSyncer) *ZapLogger {
	z := &ZapLogger{
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		encoder: enc,
	}
	z.logger = z.build(w)
	return z
}

func (z *ZapLogger) build(w zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(z.encoder(encoderConfig()), w, z.level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

// Info logs a message at the INFO level.
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.log(zapcore.InfoLevel, msg, fields...)
}

// Error logs a message at the ERROR level.
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.log(zapcore.ErrorLevel, msg, fields...)
}

// Debug logs a message at the DEBUG level.
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.log(zapcore.DebugLevel, msg, fields...)
}

// Warn logs a message at the WARN level.
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.log(zapcore.WarnLevel, msg, fields...)
}

// Fatal logs a message at the FATAL level and terminates the process.
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.log(zapcore.FatalLevel, msg, fields...)
	os.Exit(1)
}

// Field returns a builder for typed log fields.
func (z *ZapLogger) Field() contracts.Field {
	return zapField{}
}

// SetLevel sets the minimum level that is written.
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	if l, ok := levels[level]; ok {
		z.level.SetLevel(l)
	}
}

// SetDestination redirects output. FileLog writes to a size-rotated file at
// filePath[0]; ConsoleLog goes back to stderr.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if dest == contracts.FileLog && len(filePath) > 0 && filePath[0] != "" {
		lj := &lumberjack.Logger{
			Filename:   filePath[0],
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
		w, closer = lj, lj
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	_ = z.logger.Sync()
	if z.closer != nil {
		_ = z.closer.Close()
	}
	z.logger = z.build(zapcore.Lock(zapcore.AddSync(w)))
	z.closer = closer
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.logger.Sync()
}

func (z *ZapLogger) log(level zapcore.Level, msg string, fields ...contracts.Field) {
	if !z.level.Enabled(level) {
		return
	}
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if f, ok := f.(zapField); ok && f.f.Key != "" {
			zf = append(zf, f.f)
		}
	}

	z.mu.RLock()
	l := z.logger
	z.mu.RUnlock()

	if ce := l.Check(level, msg); ce != nil {
		if level == zapcore.FatalLevel {
			// Exit is left to Fatal so the hook runs after the entry is written.
			ce = ce.After(ce.Entry, zapcore.WriteThenNoop)
		}
		ce.Write(zf...)
	}
}

// zapField implements contracts.Field around a zap.Field. The zero value is
// only a builder and is skipped when logging.
type zapField struct {
	f zap.Field
}

func (zapField) Bool(key string, val bool) contracts.Field {
	return zapField{zap.Bool(key, val)}
}

func (zapField) Int(key string, val int) contracts.Field {
	return zapField{zap.Int(key, val)}
}

func (zapField) Float64(key string, val float64) contracts.Field {
	return zapField{zap.Float64(key, val)}
}

func (zapField) String(key string, val string) contracts.Field {
	return zapField{zap.String(key, val)}
}

func (zapField) Time(key string, val time.Time) contracts.Field {
	return zapField{zap.Time(key, val)}
}

func (zapField) Int64(key string, val int64) contracts.Field {
	return zapField{zap.Int64(key, val)}
}

func (zapField) Error(key string, val error) contracts.Field {
	return zapField{zap.NamedError(key, val)}
}

func (zapField) Uint64(key string, val uint64) contracts.Field {
	return zapField{zap.Uint64(key, val)}
}

func (zapField) Uint8(key string, val uint8) contracts.Field {
	return zapField{zap.Uint8(key, val)}
}

func (zapField) Bytes(key string, val []byte) contracts.Field {
	return zapField{zap.Binary(key, val)}
}
