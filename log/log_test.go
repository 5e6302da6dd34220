package log

import "testing"

func TestLoggerLevelsDoNotPanic(t *testing.T) {
	l := New("test", "component", "unit")
	l.Debug("debug message", "a", 1)
	l.Info("info message", "b", 2)
	l.Warn("warn message", "c", 3)
	l.Error("error message", "d", 4)

	child := l.With("request_id", "abc")
	child.Info("child message")
}

func TestPackageLevelHelpersUseRoot(t *testing.T) {
	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	if Root() == nil {
		t.Fatal("Root() must never return nil")
	}
}
