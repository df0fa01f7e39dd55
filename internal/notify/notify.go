// Package notify delivers fire-and-forget player notifications.
package notify

import "github.com/rs/zerolog"

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

type Notifier interface {
	Notify(message string, severity Severity)
}

// Func adapts a function to Notifier.
type Func func(message string, severity Severity)

func (f Func) Notify(message string, severity Severity) { f(message, severity) }

// Logger writes notifications to a zerolog logger.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "notify").Logger()}
}

func (l *Logger) Notify(message string, severity Severity) {
	var ev *zerolog.Event
	switch severity {
	case Warning:
		ev = l.log.Warn()
	case Error:
		ev = l.log.Error()
	default:
		ev = l.log.Info()
	}
	ev.Str("severity", string(severity)).Msg(message)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(message string, severity Severity) {
	for _, n := range m {
		n.Notify(message, severity)
	}
}
