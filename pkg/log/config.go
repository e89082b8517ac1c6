package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const samplingTick = time.Second

// Config declares a logger. Output is "stderr" (default), "stdout", "null" or
// a file path opened for append.
type Config struct {
	Level            string   `json:"level" yaml:"level"`
	Format           string   `json:"format" yaml:"format"`
	Output           string   `json:"output,omitempty" yaml:"output,omitempty"`
	Redact           []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	SampleInitial    int      `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int      `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		return NewLogger(), nil
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var format Format
	switch cfg.Format {
	case "", string(FormatText), "console":
		format = FormatText
	case string(FormatJSON):
		format = FormatJSON
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(lvl), WithFormat(format), WithOutput(out)}
	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedactions(cfg.Redact...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "null":
		return io.Discard, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}

// RedirectStdLog routes the standard library logger to l at info level and
// returns a function restoring the previous behaviour.
func RedirectStdLog(l Logger) func() {
	if zl, ok := l.(*zapLogger); ok {
		return zap.RedirectStdLog(zl.z.WithOptions(zap.AddCallerSkip(-1)))
	}
	prevFlags, prevPrefix, prevOut := stdlog.Flags(), stdlog.Prefix(), stdlog.Writer()
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l})
	return func() {
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
		stdlog.SetOutput(prevOut)
	}
}

type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.l.Info(msg)
	return len(p), nil
}

// redactCore masks configured keys before entries reach the encoder.
type redactCore struct {
	zapcore.Core
	keys map[string]struct{}
}

func newRedactCore(c zapcore.Core, keys []string) zapcore.Core {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return &redactCore{Core: c, keys: m}
}

func (c *redactCore) redact(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if _, ok := c.keys[f.Key]; !ok {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, "[REDACTED]")
	}
	if out == nil {
		return fields
	}
	return out
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(c.redact(fields)), keys: c.keys}
}

func (c *redactCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.redact(fields))
}
