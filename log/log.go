// Package log provides the ambient structured logger every other package
// reaches for: a leveled, key-value call convention (Info(msg, "k", v,
// ...)) matching the teacher's own log.Info("Progress", "blockNum", n)
// idiom throughout eth/stagedsync and migrations, backed by
// go.uber.org/zap rather than a hand-rolled formatter.
package log

import (
	"os"

	"go.uber.org/zap"
)

// Logger is a named, leveled sink. Zero value is unusable; use New or
// the package-level Root.
type Logger struct {
	s *zap.SugaredLogger
}

var root = New("katana")

// Root returns the process-wide default logger.
func Root() *Logger { return root }

// New returns a Logger tagged with name plus an optional set of
// always-present key-value fields, the same "subsystem logger" shape as
// the teacher's log.New("database", "in-memory").
func New(name string, kv ...interface{}) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "t"
	z, err := cfg.Build()
	if err != nil {
		// zap's production config only fails to build on a malformed
		// sink URL, which this constructor never supplies; falling back
		// to a no-op logger keeps New infallible for callers.
		z = zap.NewNop()
	}
	s := z.Sugar().Named(name)
	if len(kv) > 0 {
		s = s.With(kv...)
	}
	return &Logger{s: s}
}

// With returns a child logger carrying the given additional fields.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// Crit logs at the highest severity and terminates the process, for the
// small set of startup failures (bad schema version, unreadable data
// directory) that have no recovery path.
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.s.Errorw(msg, kv...)
	_ = l.s.Sync()
	os.Exit(1)
}

func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { root.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { root.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }
func Crit(msg string, kv ...interface{})  { root.Crit(msg, kv...) }
