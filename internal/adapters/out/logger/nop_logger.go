package logger

import "github.com/suchimauz/speaker-session-booking/internal/core/ports/out"

// NopLogger отбрасывает все записи, используется в тестах.
type NopLogger struct{}

func NewNopLogger() NopLogger {
	return NopLogger{}
}

func (NopLogger) Debug(string, out.LogFields)               {}
func (NopLogger) Info(string, out.LogFields)                {}
func (NopLogger) Warn(string, out.LogFields)                {}
func (NopLogger) Error(string, out.LogFields)               {}
func (l NopLogger) WithFields(out.LogFields) out.LoggerPort { return l }
func (l NopLogger) WithModule(string) out.LoggerPort        { return l }
