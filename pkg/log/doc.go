// Package log provides tracebus's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. It is backed by zap; callers never
// import zap directly so the backend stays swappable.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.FormatText),
//	)
//	l = l.With(log.Component("broker"), log.Int("pid", 4242))
//	l.Info("consumer opened", log.Uint64("mask", 0xff))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level, text or
// json format, output path, redacted keys, sampling).
//
// # Interop
//
// Loggers satisfy the printf-style interface Pebble expects, and
// RedirectStdLog routes the standard library logger into a Logger.
package log
