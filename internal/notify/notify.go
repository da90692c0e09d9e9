// Package notify is the global notification side channel: the one place user
// facing success/error/real-time messages are emitted, so stores and the API
// client don't each invent their own surfacing.
package notify

import "log/slog"

type Level string

const (
	Success  Level = "success"
	Error    Level = "error"
	Realtime Level = "realtime"
)

type Notification struct {
	Level   Level
	Message string
}

// Sink receives notifications. Implementations must be safe for concurrent
// use; the push channel delivers from its own goroutine.
type Sink interface {
	Notify(n Notification)
}

// Func adapts a function to a Sink.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops all notifications.
var Discard Sink = Func(func(Notification) {})

// Log writes notifications through slog.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch n.Level {
	case Error:
		logger.Error(n.Message)
	default:
		logger.Info(n.Message, "level", string(n.Level))
	}
}
