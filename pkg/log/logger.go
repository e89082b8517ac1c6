// Package log provides a structured logging system for tracebus services.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZap(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	case l >= zapcore.FatalLevel:
		return FatalLevel
	default:
		return ErrorLevel
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys for propagating logging context
const (
	TraceIDKey   = "trace_id"
	SpanIDKey    = "span_id"
	ComponentKey = "component"
)

// Format selects the encoder.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Logger defines the core logging interface for tracebus components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// printf-style variants; these also make a Logger usable as pebble.Logger.
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	With(fields ...Field) Logger

	// WithContext tags logs with the trace and span ids of the active span.
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level

	// Sync flushes buffered output.
	Sync() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*options)

type options struct {
	level      Level
	format     Format
	out        io.Writer
	redactions []string
	sampleInit int
	sampleThen int
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(o *options) { o.level = level }
}

// WithFormat selects text (console) or json encoding.
func WithFormat(format Format) LoggerOption {
	return func(o *options) { o.format = format }
}

// WithOutput sets the destination writer. Defaults to stderr.
func WithOutput(w io.Writer) LoggerOption {
	return func(o *options) { o.out = w }
}

// WithRedactions replaces the values of the given field keys with [REDACTED].
func WithRedactions(keys ...string) LoggerOption {
	return func(o *options) { o.redactions = append(o.redactions, keys...) }
}

// WithSampling logs the first initial entries per message each second and
// every thereafter-th entry after that.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(o *options) {
		o.sampleInit = initial
		o.sampleThen = thereafter
	}
}

type zapLogger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a new logger with the given options.
func NewLogger(opts ...LoggerOption) Logger {
	o := options{level: InfoLevel, format: FormatText, out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	var enc zapcore.Encoder
	if o.format == FormatJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	atom := zap.NewAtomicLevelAt(o.level.zap())
	var core zapcore.Core = zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(o.out)), atom)
	if len(o.redactions) > 0 {
		core = newRedactCore(core, o.redactions)
	}
	if o.sampleThen > 0 {
		core = zapcore.NewSamplerWithOptions(core, samplingTick, o.sampleInit, o.sampleThen)
	}
	return &zapLogger{
		z:     zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: atom,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZap(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZap(fields)...) }

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	l.z.Sugar().Debugf(format, args...)
}
func (l *zapLogger) Infof(format string, args ...interface{}) {
	l.z.Sugar().Infof(format, args...)
}
func (l *zapLogger) Warnf(format string, args ...interface{}) {
	l.z.Sugar().Warnf(format, args...)
}
func (l *zapLogger) Errorf(format string, args ...interface{}) {
	l.z.Sugar().Errorf(format, args...)
}
func (l *zapLogger) Fatalf(format string, args ...interface{}) {
	l.z.Sugar().Fatalf(format, args...)
}

func (l *zapLogger) WithField(key string, value interface{}) Logger {
	return l.With(F(key, value))
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	fs := make([]Field, 0, len(fields))
	for k, v := range fields {
		fs = append(fs, F(k, v))
	}
	return l.With(fs...)
}

func (l *zapLogger) WithError(err error) Logger {
	return l.With(Err(err))
}

func (l *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &zapLogger{z: l.z.With(toZap(fields)...), level: l.level}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(Str(TraceIDKey, sc.TraceID().String()), Str(SpanIDKey, sc.SpanID().String()))
}

func (l *zapLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *zapLogger) SetLevel(level Level) { l.level.SetLevel(level.zap()) }
func (l *zapLogger) GetLevel() Level      { return fromZap(l.level.Level()) }
func (l *zapLogger) Sync() error          { return l.z.Sync() }
