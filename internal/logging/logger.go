// Package logging wraps zap the way the teacher's state package does
// (ag-ui go-sdk, pkg/state/logger.go): a small structured interface so
// engine, queue, and txn never import zap directly, plus a no-op
// default so the engine is usable without configuring a logger at all.
package logging

import "go.uber.org/zap"

// Field is a structured logging key/value pair.
type Field = zap.Field

// Logger is the structured logging surface the engine depends on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NewZap wraps an existing *zap.Logger.
func NewZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

// NewProduction builds a production zap configuration, matching the
// teacher's default construction path for non-test callers.
func NewProduction() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZap(z), nil
}

// NoOp returns a Logger that discards everything — the engine's
// zero-value default so callers who never configure a logger still
// get a valid, race-free Logger.
func NoOp() Logger { return noop{} }

type zapLogger struct{ z *zap.Logger }

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

type noop struct{}

func (noop) Debug(string, ...Field) {}
func (noop) Info(string, ...Field)  {}
func (noop) Warn(string, ...Field)  {}
func (noop) Error(string, ...Field) {}

// Convenience field constructors re-exported so callers don't need a
// direct zap import either.
var (
	String = zap.String
	Uint64 = zap.Uint64
	Int    = zap.Int
	Err    = zap.Error
	Any    = zap.Any
)
