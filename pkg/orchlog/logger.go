// Package orchlog provides the orchestrator's structured logger: a
// thin wrapper over zap that every component accepts as an optional,
// nil-safe dependency, matching the "nil dependency means no-op"
// convention used for the rate tracker's optional Prometheus registry
// (pkg/ratelimit.WithPrometheus) and the teacher's NoOpHookRunner.
package orchlog

import (
	"go.uber.org/zap"

	"github.com/relaywork/modelbroker/pkg/orcherr"
)

// Logger is the subset of *zap.Logger the orchestrator's components
// call. A nil *Logger is valid and logs nothing.
type Logger struct {
	z *zap.Logger
}

// New wraps a configured zap.Logger.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// NewProduction builds a Logger with zap's production defaults (JSON
// encoding, info level), falling back to a no-op Logger if zap itself
// cannot build one (e.g. stderr is unwritable).
func NewProduction() *Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return nil
	}
	return &Logger{z: z}
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(orcherr.Mask(msg), fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Warn(orcherr.Mask(msg), fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(orcherr.Mask(msg), fields...)
}

// Sync flushes any buffered log entries. Safe to call on a nil Logger.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}
